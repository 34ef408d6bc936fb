package localfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcplabs/pcpchat/store"
)

func newTestDriver(t *testing.T) (*Driver, string) {
	t.Helper()
	dir := t.TempDir()
	d, err := New(dir)
	require.NoError(t, err)
	base := time.Unix(1_700_000_000, 0)
	var ticks int64
	d.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
	return d, dir
}

func testConversation(uid, owner string) *store.Conversation {
	return &store.Conversation{
		UID:       uid,
		OwnerID:   owner,
		Title:     store.DefaultTitle,
		CreatedTs: 1_700_000_000,
		UpdatedTs: 1_700_000_000,
	}
}

func TestCreateAndListConversations(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)

	_, err := d.CreateConversation(ctx, testConversation("c1", "owner-a"))
	require.NoError(t, err)
	_, err = d.CreateConversation(ctx, testConversation("c2", "owner-b"))
	require.NoError(t, err)

	owner := "owner-a"
	list, err := d.ListConversations(ctx, &store.FindConversation{OwnerID: &owner})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].UID)

	uid := "c2"
	list, err = d.ListConversations(ctx, &store.FindConversation{UID: &uid, OwnerID: &owner})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAppendAndListMessages(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)

	_, err := d.CreateConversation(ctx, testConversation("c1", "owner-a"))
	require.NoError(t, err)

	require.NoError(t, d.AppendMessages(ctx, "c1", []*store.Message{
		{Role: store.RoleSystem, Content: "seed"},
		{Role: store.RoleUser, Content: "Hello"},
	}))
	require.NoError(t, d.AppendMessages(ctx, "c1", []*store.Message{
		{Role: store.RoleAssistant, Content: "Hi there"},
	}))

	msgs, err := d.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "seed", msgs[0].Content)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.Equal(t, "Hi there", msgs[2].Content)

	assert.ErrorIs(t, d.AppendMessages(ctx, "missing", nil), store.ErrNotFound)
	_, err = d.ListMessages(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendBumpsUpdatedMonotonically(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)

	_, err := d.CreateConversation(ctx, testConversation("c1", "owner-a"))
	require.NoError(t, err)

	uid := "c1"
	before, err := d.ListConversations(ctx, &store.FindConversation{UID: &uid})
	require.NoError(t, err)

	require.NoError(t, d.AppendMessages(ctx, "c1", []*store.Message{{Role: store.RoleUser, Content: "x"}}))
	after, err := d.ListConversations(ctx, &store.FindConversation{UID: &uid})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after[0].UpdatedTs, before[0].UpdatedTs)
}

func TestUpdateAndDeleteConversation(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)

	_, err := d.CreateConversation(ctx, testConversation("c1", "owner-a"))
	require.NoError(t, err)

	title := "Renamed"
	updated, err := d.UpdateConversation(ctx, &store.UpdateConversation{UID: "c1", Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

	_, err = d.UpdateConversation(ctx, &store.UpdateConversation{UID: "missing", Title: &title})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, d.DeleteConversation(ctx, "c1"))
	assert.ErrorIs(t, d.DeleteConversation(ctx, "c1"), store.ErrNotFound)
}

func TestStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	d, dir := newTestDriver(t)

	_, err := d.CreateConversation(ctx, testConversation("c1", "owner-a"))
	require.NoError(t, err)
	require.NoError(t, d.AppendMessages(ctx, "c1", []*store.Message{{Role: store.RoleUser, Content: "Hello"}}))
	_, err = d.CreateUser(ctx, &store.User{ID: "u1", Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)

	reopened, err := New(dir)
	require.NoError(t, err)

	msgs, err := reopened.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", msgs[0].Content)

	name := "alice"
	user, err := reopened.GetUser(ctx, &store.FindUser{Username: &name})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)

	// No stray temp file left behind by the atomic replace.
	_, err = os.Stat(filepath.Join(dir, conversationsFile+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestCorruptStoreFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, conversationsFile), []byte("{not json"), 0o600))

	d, err := New(dir)
	require.NoError(t, err)

	list, err := d.ListConversations(context.Background(), &store.FindConversation{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)

	created, err := d.CreateUser(ctx, &store.User{ID: "u1", Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)
	assert.NotZero(t, created.CreatedTs)

	_, err = d.CreateUser(ctx, &store.User{ID: "u2", Username: "alice", PasswordHash: "h2"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	id := "u1"
	user, err := d.GetUser(ctx, &store.FindUser{ID: &id})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)

	name := "nobody"
	user, err = d.GetUser(ctx, &store.FindUser{Username: &name})
	require.NoError(t, err)
	assert.Nil(t, user)
}
