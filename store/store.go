// Package store implements durable, owner-partitioned storage for
// conversations across an ordered list of backends. The first backend is
// authoritative; later ones are fallbacks used when it is unreachable. A
// conversation created during a remote outage lives only in the fallback and
// is not reconciled once the remote recovers.
package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound reports that no backend holds a matching owned conversation.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists reports a uniqueness violation (duplicate username).
var ErrAlreadyExists = errors.New("already exists")

// SystemPrompt seeds every conversation and frames every completion call.
const SystemPrompt = "You are PCP Assistant, a helpful AI assistant. " +
	"Answer concisely and clearly. Use Markdown formatting and code blocks where appropriate."

// Store fans conversation operations out over backends in order.
type Store struct {
	backends []Driver
	users    UserDriver
	now      func() time.Time
}

// New creates a Store over the given backends, tried in the given order.
// users is the backend holding principal accounts.
func New(users UserDriver, backends ...Driver) *Store {
	return &Store{
		backends: backends,
		users:    users,
		now:      time.Now,
	}
}

// CreateConversation allocates a new conversation for ownerID and seeds its
// hidden system message. Backends are tried in order; the record lands on the
// first one that accepts both writes.
func (s *Store) CreateConversation(ctx context.Context, ownerID, title string) (*Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	now := s.now().Unix()
	create := &Conversation{
		UID:       strings.ReplaceAll(uuid.New().String(), "-", ""),
		OwnerID:   ownerID,
		Title:     title,
		CreatedTs: now,
		UpdatedTs: now,
	}
	seed := []*Message{{Role: RoleSystem, Content: SystemPrompt, CreatedTs: now}}

	var lastErr error
	for _, b := range s.backends {
		conv, err := b.CreateConversation(ctx, create)
		if err != nil {
			slog.Warn("conversation create failed, trying next backend", "backend", b.Name(), "err", err)
			lastErr = err
			continue
		}
		if err := b.AppendMessages(ctx, conv.UID, seed); err != nil {
			// A conversation without its seed message violates the data model;
			// undo and fall through to the next backend.
			_ = b.DeleteConversation(ctx, conv.UID)
			slog.Warn("seed message failed, trying next backend", "backend", b.Name(), "err", err)
			lastErr = err
			continue
		}
		return conv, nil
	}
	return nil, errors.Wrap(lastErr, "all backends rejected create")
}

// ListConversations returns the union of ownerID's conversations across all
// reachable backends, sorted by updated timestamp descending. Failures on
// individual backends are tolerated as long as at least one answers.
// Duplicate UIDs across backends are not de-duplicated.
func (s *Store) ListConversations(ctx context.Context, ownerID string) ([]*Conversation, error) {
	var (
		out      []*Conversation
		answered bool
		lastErr  error
	)
	for _, b := range s.backends {
		list, err := b.ListConversations(ctx, &FindConversation{OwnerID: &ownerID})
		if err != nil {
			slog.Warn("conversation list failed on backend", "backend", b.Name(), "err", err)
			lastErr = err
			continue
		}
		answered = true
		out = append(out, list...)
	}
	if !answered {
		return nil, errors.Wrap(lastErr, "all backends unreachable")
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedTs > out[j].UpdatedTs
	})
	return out, nil
}

// GetConversation returns ownerID's conversation with the given UID from the
// first backend that holds it, or nil if none does.
func (s *Store) GetConversation(ctx context.Context, uid, ownerID string) (*Conversation, error) {
	_, conv := s.findBackend(ctx, uid, ownerID)
	return conv, nil
}

// ListMessages returns the conversation's messages in insertion order,
// excluding the leading system seed. A missing or unowned conversation yields
// an empty slice, not an error.
func (s *Store) ListMessages(ctx context.Context, uid, ownerID string) ([]*Message, error) {
	b, conv := s.findBackend(ctx, uid, ownerID)
	if conv == nil {
		return []*Message{}, nil
	}
	msgs, err := b.ListMessages(ctx, uid)
	if err != nil {
		return nil, errors.Wrapf(err, "list messages on %s", b.Name())
	}
	if len(msgs) > 0 && msgs[0].Role == RoleSystem {
		msgs = msgs[1:]
	}
	return msgs, nil
}

// AppendMessages appends msgs in order to ownerID's conversation and bumps
// its updated timestamp. Returns ErrNotFound if no backend holds an owned
// match.
func (s *Store) AppendMessages(ctx context.Context, uid, ownerID string, msgs []*Message) error {
	b, conv := s.findBackend(ctx, uid, ownerID)
	if conv == nil {
		return ErrNotFound
	}
	now := s.now().Unix()
	for _, m := range msgs {
		if m.CreatedTs == 0 {
			m.CreatedTs = now
		}
	}
	return b.AppendMessages(ctx, uid, msgs)
}

// RenameConversation sets a new title on ownerID's conversation. Empty or
// whitespace-only titles are coerced to FallbackTitle.
func (s *Store) RenameConversation(ctx context.Context, uid, ownerID, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = FallbackTitle
	}
	b, conv := s.findBackend(ctx, uid, ownerID)
	if conv == nil {
		return nil, ErrNotFound
	}
	return b.UpdateConversation(ctx, &UpdateConversation{UID: uid, OwnerID: ownerID, Title: &title})
}

// DeleteConversation removes ownerID's conversation from whichever backend
// holds it. Deleting an unknown UID reports ErrNotFound.
func (s *Store) DeleteConversation(ctx context.Context, uid, ownerID string) error {
	b, conv := s.findBackend(ctx, uid, ownerID)
	if conv == nil {
		return ErrNotFound
	}
	return b.DeleteConversation(ctx, uid)
}

// Close releases every backend.
func (s *Store) Close() error {
	var lastErr error
	for _, b := range s.backends {
		if err := b.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// findBackend locates the first backend holding an owned match. Transport
// errors are logged and treated as "not here" so fallbacks still apply.
func (s *Store) findBackend(ctx context.Context, uid, ownerID string) (Driver, *Conversation) {
	find := &FindConversation{UID: &uid, OwnerID: &ownerID}
	for _, b := range s.backends {
		list, err := b.ListConversations(ctx, find)
		if err != nil {
			slog.Warn("conversation lookup failed on backend", "backend", b.Name(), "err", err)
			continue
		}
		if len(list) > 0 {
			return b, list[0]
		}
	}
	return nil, nil
}
