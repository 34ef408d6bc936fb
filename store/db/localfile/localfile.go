// Package localfile implements the fallback conversation backend: a single
// JSON object keyed by conversation id, loaded at open and flushed on every
// write via temp-file-then-atomic-rename so readers never observe a partial
// file. User accounts live in a sibling users.json with the same discipline.
package localfile

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/pcplabs/pcpchat/store"
)

const (
	conversationsFile = "chat_history.json"
	usersFile         = "users.json"
)

type messageRecord struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Created int64  `json:"created"`
}

type conversationRecord struct {
	OwnerID  string          `json:"user_id"`
	Title    string          `json:"title"`
	Messages []messageRecord `json:"messages"`
	Created  int64           `json:"created"`
	Updated  int64           `json:"updated"`
}

type userRecord struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Created      int64  `json:"created"`
}

// Driver is the local JSON-file backend. All state is held in memory behind a
// mutex; every mutation flushes the affected file.
type Driver struct {
	mu      sync.RWMutex
	dataDir string
	convs   map[string]*conversationRecord
	users   map[string]*userRecord // keyed by username
	now     func() time.Time
}

// New opens (or initializes) the local store rooted at dataDir. A malformed
// store file is logged and replaced with an empty one rather than refusing to
// start.
func New(dataDir string) (*Driver, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}
	d := &Driver{
		dataDir: dataDir,
		convs:   map[string]*conversationRecord{},
		users:   map[string]*userRecord{},
		now:     time.Now,
	}
	if err := loadJSON(filepath.Join(dataDir, conversationsFile), &d.convs); err != nil {
		slog.Warn("local conversation store unreadable, starting empty", "err", err)
		d.convs = map[string]*conversationRecord{}
	}
	if err := loadJSON(filepath.Join(dataDir, usersFile), &d.users); err != nil {
		slog.Warn("local user store unreadable, starting empty", "err", err)
		d.users = map[string]*userRecord{}
	}
	return d, nil
}

func (*Driver) Name() string { return "localfile" }

// Close is a no-op; every mutation already flushed.
func (*Driver) Close() error { return nil }

func (d *Driver) CreateConversation(_ context.Context, create *store.Conversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.convs[create.UID] = &conversationRecord{
		OwnerID:  create.OwnerID,
		Title:    create.Title,
		Messages: []messageRecord{},
		Created:  create.CreatedTs,
		Updated:  create.UpdatedTs,
	}
	if err := d.flushConversations(); err != nil {
		delete(d.convs, create.UID)
		return nil, err
	}
	out := *create
	return &out, nil
}

func (d *Driver) ListConversations(_ context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*store.Conversation
	for uid, rec := range d.convs {
		if find.UID != nil && *find.UID != uid {
			continue
		}
		if find.OwnerID != nil && *find.OwnerID != rec.OwnerID {
			continue
		}
		out = append(out, &store.Conversation{
			UID:       uid,
			OwnerID:   rec.OwnerID,
			Title:     rec.Title,
			CreatedTs: rec.Created,
			UpdatedTs: rec.Updated,
		})
	}
	return out, nil
}

func (d *Driver) UpdateConversation(_ context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.convs[update.UID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.Title != nil {
		rec.Title = *update.Title
	}
	rec.Updated = d.bumped(rec.Updated)
	if err := d.flushConversations(); err != nil {
		return nil, err
	}
	return &store.Conversation{
		UID:       update.UID,
		OwnerID:   rec.OwnerID,
		Title:     rec.Title,
		CreatedTs: rec.Created,
		UpdatedTs: rec.Updated,
	}, nil
}

func (d *Driver) DeleteConversation(_ context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.convs[uid]; !ok {
		return store.ErrNotFound
	}
	delete(d.convs, uid)
	return d.flushConversations()
}

// AppendMessages is atomic at the granularity of the whole batch: the lock is
// held until the flush completes.
func (d *Driver) AppendMessages(_ context.Context, uid string, msgs []*store.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.convs[uid]
	if !ok {
		return store.ErrNotFound
	}
	for _, m := range msgs {
		created := m.CreatedTs
		if created == 0 {
			created = d.now().Unix()
		}
		rec.Messages = append(rec.Messages, messageRecord{Role: m.Role, Content: m.Content, Created: created})
	}
	rec.Updated = d.bumped(rec.Updated)
	return d.flushConversations()
}

func (d *Driver) ListMessages(_ context.Context, uid string) ([]*store.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.convs[uid]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]*store.Message, 0, len(rec.Messages))
	for _, m := range rec.Messages {
		out = append(out, &store.Message{Role: m.Role, Content: m.Content, CreatedTs: m.Created})
	}
	return out, nil
}

func (d *Driver) CreateUser(_ context.Context, create *store.User) (*store.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[create.Username]; ok {
		return nil, store.ErrAlreadyExists
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = d.now().Unix()
	}
	d.users[create.Username] = &userRecord{
		ID:           create.ID,
		Username:     create.Username,
		PasswordHash: create.PasswordHash,
		Created:      create.CreatedTs,
	}
	if err := d.flushUsers(); err != nil {
		delete(d.users, create.Username)
		return nil, err
	}
	out := *create
	return &out, nil
}

func (d *Driver) GetUser(_ context.Context, find *store.FindUser) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, rec := range d.users {
		if find.Username != nil && *find.Username != rec.Username {
			continue
		}
		if find.ID != nil && *find.ID != rec.ID {
			continue
		}
		return &store.User{
			ID:           rec.ID,
			Username:     rec.Username,
			PasswordHash: rec.PasswordHash,
			CreatedTs:    rec.Created,
		}, nil
	}
	return nil, nil
}

// bumped keeps updated timestamps monotonically non-decreasing even if the
// wall clock steps backwards between writes.
func (d *Driver) bumped(prev int64) int64 {
	now := d.now().Unix()
	if now < prev {
		return prev
	}
	return now
}

func (d *Driver) flushConversations() error {
	return saveJSON(filepath.Join(d.dataDir, conversationsFile), d.convs)
}

func (d *Driver) flushUsers() error {
	return saveJSON(filepath.Join(d.dataDir, usersFile), d.users)
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	return errors.Wrapf(json.Unmarshal(data, v), "parse %s", path)
}

// saveJSON writes to a temp path and renames into place so a concurrent
// reader never sees a torn file.
func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "commit %s", path)
	}
	return nil
}
