package store

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConv struct {
	conv Conversation
	msgs []*Message
}

// fakeDriver is an in-memory backend with switchable failure modes.
type fakeDriver struct {
	name       string
	failCreate bool
	failAppend bool
	failList   bool
	convs      map[string]*fakeConv
}

func newFakeDriver(name string) *fakeDriver {
	return &fakeDriver{name: name, convs: map[string]*fakeConv{}}
}

func (d *fakeDriver) Name() string { return d.name }
func (d *fakeDriver) Close() error { return nil }

func (d *fakeDriver) CreateConversation(_ context.Context, create *Conversation) (*Conversation, error) {
	if d.failCreate {
		return nil, errors.New("backend down")
	}
	d.convs[create.UID] = &fakeConv{conv: *create}
	out := *create
	return &out, nil
}

func (d *fakeDriver) ListConversations(_ context.Context, find *FindConversation) ([]*Conversation, error) {
	if d.failList {
		return nil, errors.New("backend down")
	}
	var out []*Conversation
	for uid, rec := range d.convs {
		if find.UID != nil && *find.UID != uid {
			continue
		}
		if find.OwnerID != nil && *find.OwnerID != rec.conv.OwnerID {
			continue
		}
		c := rec.conv
		out = append(out, &c)
	}
	return out, nil
}

func (d *fakeDriver) UpdateConversation(_ context.Context, update *UpdateConversation) (*Conversation, error) {
	rec, ok := d.convs[update.UID]
	if !ok {
		return nil, ErrNotFound
	}
	if update.Title != nil {
		rec.conv.Title = *update.Title
	}
	rec.conv.UpdatedTs++
	c := rec.conv
	return &c, nil
}

func (d *fakeDriver) DeleteConversation(_ context.Context, uid string) error {
	if _, ok := d.convs[uid]; !ok {
		return ErrNotFound
	}
	delete(d.convs, uid)
	return nil
}

func (d *fakeDriver) AppendMessages(_ context.Context, uid string, msgs []*Message) error {
	if d.failAppend {
		return errors.New("backend down")
	}
	rec, ok := d.convs[uid]
	if !ok {
		return ErrNotFound
	}
	rec.msgs = append(rec.msgs, msgs...)
	for _, m := range msgs {
		if m.CreatedTs > rec.conv.UpdatedTs {
			rec.conv.UpdatedTs = m.CreatedTs
		}
	}
	return nil
}

func (d *fakeDriver) ListMessages(_ context.Context, uid string) ([]*Message, error) {
	rec, ok := d.convs[uid]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]*Message{}, rec.msgs...), nil
}

// newTestStore returns a Store over the given backends with a ticking clock
// that advances one second per call.
func newTestStore(backends ...Driver) *Store {
	s := New(nil, backends...)
	base := time.Unix(1_700_000_000, 0)
	var ticks int64
	s.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
	return s
}

func TestCreateSeedsHiddenSystemMessage(t *testing.T) {
	ctx := context.Background()
	d := newFakeDriver("primary")
	s := newTestStore(d)

	conv, err := s.CreateConversation(ctx, "owner-a", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, conv.Title)

	raw, err := d.ListMessages(ctx, conv.UID)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, RoleSystem, raw[0].Role)

	visible, err := s.ListMessages(ctx, conv.UID, "owner-a")
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestCreateThenListIncludesNewConversation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newFakeDriver("primary"))

	conv, err := s.CreateConversation(ctx, "owner-a", "")
	require.NoError(t, err)

	list, err := s.ListConversations(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, conv.UID, list[0].UID)
	assert.Equal(t, DefaultTitle, list[0].Title)
}

func TestCreateFallsBackWhenPrimaryRejects(t *testing.T) {
	ctx := context.Background()
	primary := newFakeDriver("remote")
	primary.failCreate = true
	fallback := newFakeDriver("local")
	s := newTestStore(primary, fallback)

	conv, err := s.CreateConversation(ctx, "owner-a", "")
	require.NoError(t, err)
	assert.Empty(t, primary.convs)
	assert.Contains(t, fallback.convs, conv.UID)
}

func TestCreateFallsBackWhenSeedFails(t *testing.T) {
	ctx := context.Background()
	primary := newFakeDriver("remote")
	primary.failAppend = true
	fallback := newFakeDriver("local")
	s := newTestStore(primary, fallback)

	conv, err := s.CreateConversation(ctx, "owner-a", "")
	require.NoError(t, err)
	// The half-created record must not linger on the failed backend.
	assert.Empty(t, primary.convs)
	assert.Contains(t, fallback.convs, conv.UID)
}

func TestCreateFailsWhenAllBackendsReject(t *testing.T) {
	ctx := context.Background()
	primary := newFakeDriver("remote")
	primary.failCreate = true
	fallback := newFakeDriver("local")
	fallback.failCreate = true
	s := newTestStore(primary, fallback)

	_, err := s.CreateConversation(ctx, "owner-a", "")
	require.Error(t, err)
}

func TestListUnionSortedByUpdatedDescending(t *testing.T) {
	ctx := context.Background()
	remote := newFakeDriver("remote")
	local := newFakeDriver("local")
	s := newTestStore(remote, local)

	c1, err := s.CreateConversation(ctx, "owner-a", "first")
	require.NoError(t, err)

	// Force the next ones onto the fallback so the union spans both backends.
	remote.failCreate = true
	c2, err := s.CreateConversation(ctx, "owner-a", "second")
	require.NoError(t, err)
	c3, err := s.CreateConversation(ctx, "owner-a", "third")
	require.NoError(t, err)
	remote.failCreate = false

	// Touch them in order c1 < c2 < c3.
	for _, uid := range []string{c1.UID, c2.UID, c3.UID} {
		require.NoError(t, s.AppendMessages(ctx, uid, "owner-a", []*Message{
			{Role: RoleUser, Content: "ping"},
		}))
	}

	list, err := s.ListConversations(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{c3.UID, c2.UID, c1.UID}, []string{list[0].UID, list[1].UID, list[2].UID})
}

func TestListToleratesFailingBackend(t *testing.T) {
	ctx := context.Background()
	remote := newFakeDriver("remote")
	local := newFakeDriver("local")
	s := newTestStore(remote, local)

	remote.failCreate = true
	conv, err := s.CreateConversation(ctx, "owner-a", "")
	require.NoError(t, err)

	remote.failList = true
	list, err := s.ListConversations(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, conv.UID, list[0].UID)
}

func TestListFailsWhenAllBackendsUnreachable(t *testing.T) {
	ctx := context.Background()
	remote := newFakeDriver("remote")
	remote.failList = true
	local := newFakeDriver("local")
	local.failList = true
	s := newTestStore(remote, local)

	_, err := s.ListConversations(ctx, "owner-a")
	require.Error(t, err)
}

func TestAppendRoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newFakeDriver("primary"))

	conv, err := s.CreateConversation(ctx, "owner-a", "")
	require.NoError(t, err)

	require.NoError(t, s.AppendMessages(ctx, conv.UID, "owner-a", []*Message{
		{Role: RoleUser, Content: "Hello"},
		{Role: RoleAssistant, Content: "Hi there"},
	}))
	require.NoError(t, s.AppendMessages(ctx, conv.UID, "owner-a", []*Message{
		{Role: RoleUser, Content: "How are you?"},
	}))

	msgs, err := s.ListMessages(ctx, conv.UID, "owner-a")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, "Hi there", msgs[1].Content)
	assert.Equal(t, "How are you?", msgs[2].Content)
}

func TestAppendUnknownConversation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newFakeDriver("primary"))

	err := s.AppendMessages(ctx, "missing", "owner-a", []*Message{{Role: RoleUser, Content: "x"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenameCoercesEmptyTitle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newFakeDriver("primary"))

	conv, err := s.CreateConversation(ctx, "owner-a", "")
	require.NoError(t, err)

	renamed, err := s.RenameConversation(ctx, conv.UID, "owner-a", "   ")
	require.NoError(t, err)
	assert.Equal(t, FallbackTitle, renamed.Title)
}

func TestDeleteIsIdempotentlyNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newFakeDriver("primary"))

	conv, err := s.CreateConversation(ctx, "owner-a", "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conv.UID, "owner-a"))
	assert.ErrorIs(t, s.DeleteConversation(ctx, conv.UID, "owner-a"), ErrNotFound)
}

func TestOwnershipIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newFakeDriver("primary"))

	convA, err := s.CreateConversation(ctx, "owner-a", "a's chat")
	require.NoError(t, err)

	listB, err := s.ListConversations(ctx, "owner-b")
	require.NoError(t, err)
	assert.Empty(t, listB)

	msgsB, err := s.ListMessages(ctx, convA.UID, "owner-b")
	require.NoError(t, err)
	assert.Empty(t, msgsB)

	_, err = s.RenameConversation(ctx, convA.UID, "owner-b", "stolen")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteConversation(ctx, convA.UID, "owner-b"), ErrNotFound)
	assert.ErrorIs(t, s.AppendMessages(ctx, convA.UID, "owner-b", []*Message{
		{Role: RoleUser, Content: "x"},
	}), ErrNotFound)

	// A's view is untouched.
	listA, err := s.ListConversations(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, listA, 1)
	assert.Equal(t, "a's chat", listA[0].Title)
}

func TestListMessagesMissingConversationIsEmptyNotError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newFakeDriver("primary"))

	msgs, err := s.ListMessages(ctx, "missing", "owner-a")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}
