package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globalchat/internal/backend"
	"globalchat/internal/pkg/errs"
)

func TestSignUpOpensSession(t *testing.T) {
	ctx := context.Background()
	b := New()

	identity, err := b.SignUp(ctx, "A@Example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, identity.ID)
	assert.Equal(t, "a@example.com", identity.Email)

	current, ok, err := b.CurrentSession(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, identity, current)
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	b := New()

	_, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	_, err = b.SignUp(ctx, "a@example.com", "secret2")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrAuthFailed))
	assert.ErrorIs(t, err, backend.ErrUserAlreadyRegistered)
}

func TestSignUpPasswordPolicy(t *testing.T) {
	ctx := context.Background()

	_, err := New().SignUp(ctx, "a@example.com", "pw")
	assert.True(t, errs.Is(err, errs.ErrAuthFailed))

	_, err = New(WithMinPasswordLength(1)).SignUp(ctx, "a@example.com", "pw")
	assert.NoError(t, err)
}

func TestSignInAndOut(t *testing.T) {
	ctx := context.Background()
	b := New()

	registered, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, b.SignOut(ctx))

	_, ok, err := b.CurrentSession(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.SignInWithPassword(ctx, "a@example.com", "wrong-password")
	assert.ErrorIs(t, err, backend.ErrInvalidLogin)

	_, err = b.SignInWithPassword(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, backend.ErrInvalidLogin)

	identity, err := b.SignInWithPassword(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered, identity)
}

func TestSetErrorInjectsFailure(t *testing.T) {
	ctx := context.Background()
	b := New()

	b.SetError(OpSignOut, ErrInjected)
	err := b.SignOut(ctx)
	assert.ErrorIs(t, err, ErrInjected)

	b.SetError(OpSignOut, nil)
	assert.NoError(t, b.SignOut(ctx))

	b.SetError(OpInsert, ErrInjected)
	err = b.Insert(ctx, "t", backend.Row{"a": 1})
	assert.True(t, errs.Is(err, errs.ErrStore))
}

func TestInsertAssignsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := New(WithClock(func() time.Time { return fixed }))

	require.NoError(t, b.Insert(ctx, "messages", backend.Row{"content": "hi"}))

	rows := b.Rows("messages")
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0]["id"])
	assert.Equal(t, fixed, rows[0]["created_at"])
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	b := New()

	require.NoError(t, b.Insert(ctx, "profiles", backend.Row{"id": "u1"}))
	err := b.Insert(ctx, "profiles", backend.Row{"id": "u1"})
	assert.True(t, errs.Is(err, errs.ErrStore))
}

func TestSelectOne(t *testing.T) {
	ctx := context.Background()
	b := New()

	require.NoError(t, b.Insert(ctx, "profiles", backend.Row{"id": "u1", "email": "a@example.com"}))
	require.NoError(t, b.Insert(ctx, "profiles", backend.Row{"id": "u2", "email": "dup@example.com"}))
	require.NoError(t, b.Insert(ctx, "profiles", backend.Row{"id": "u3", "email": "dup@example.com"}))

	row, err := b.SelectOne(ctx, "profiles", backend.Eq("id", "u1"))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", row["email"])

	_, err = b.SelectOne(ctx, "profiles", backend.Eq("id", "missing"))
	assert.True(t, errs.Is(err, errs.ErrNotFound))

	_, err = b.SelectOne(ctx, "profiles", backend.Eq("email", "dup@example.com"))
	assert.True(t, errs.Is(err, errs.ErrStore))
}

func TestReturnedRowsAreCopies(t *testing.T) {
	ctx := context.Background()
	b := New()

	require.NoError(t, b.Insert(ctx, "profiles", backend.Row{"id": "u1", "bio": "x"}))

	row, err := b.SelectOne(ctx, "profiles", backend.Eq("id", "u1"))
	require.NoError(t, err)
	row["bio"] = "changed"

	again, err := b.SelectOne(ctx, "profiles", backend.Eq("id", "u1"))
	require.NoError(t, err)
	assert.Equal(t, "x", again["bio"])
}

func TestUpdatePatchesMatchingRows(t *testing.T) {
	ctx := context.Background()
	b := New()

	require.NoError(t, b.Insert(ctx, "profiles", backend.Row{"id": "u1", "bio": "x", "career": "dev"}))

	require.NoError(t, b.Update(ctx, "profiles", backend.Eq("id", "u1"), backend.Row{"bio": "y"}))
	require.NoError(t, b.Update(ctx, "profiles", backend.Eq("id", "missing"), backend.Row{"bio": "z"}))

	row, err := b.SelectOne(ctx, "profiles", backend.Eq("id", "u1"))
	require.NoError(t, err)
	assert.Equal(t, "y", row["bio"])
	assert.Equal(t, "dev", row["career"])
}

func TestRealtimeDeliversMatchingChanges(t *testing.T) {
	ctx := context.Background()
	b := New()

	var inserts, all []backend.Change
	insertSub, err := b.Subscribe(ctx, "messages", backend.EventInsert, func(c backend.Change) { inserts = append(inserts, c) })
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "messages", backend.EventAll, func(c backend.Change) { all = append(all, c) })
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "other", backend.EventAll, func(c backend.Change) { t.Fatal("wrong table") })
	require.NoError(t, err)

	require.NoError(t, b.Insert(ctx, "messages", backend.Row{"id": "m1", "content": "hi"}))
	require.NoError(t, b.Update(ctx, "messages", backend.Eq("id", "m1"), backend.Row{"content": "edited"}))

	require.Len(t, inserts, 1)
	assert.Equal(t, backend.EventInsert, inserts[0].Kind)
	assert.Equal(t, "hi", inserts[0].New["content"])

	require.Len(t, all, 2)
	assert.Equal(t, backend.EventUpdate, all[1].Kind)
	assert.Equal(t, "hi", all[1].Old["content"])
	assert.Equal(t, "edited", all[1].New["content"])

	require.NoError(t, insertSub.Unsubscribe())
	require.NoError(t, insertSub.Unsubscribe())
	assert.Equal(t, 2, b.SubscriberCount())

	require.NoError(t, b.Insert(ctx, "messages", backend.Row{"id": "m2"}))
	assert.Len(t, inserts, 1)
	assert.Len(t, all, 3)
}

func TestHandlerMayUnsubscribeAndWrite(t *testing.T) {
	ctx := context.Background()
	b := New()

	var sub backend.Subscription
	calls := 0
	sub, err := b.Subscribe(ctx, "messages", backend.EventInsert, func(c backend.Change) {
		calls++
		require.NoError(t, sub.Unsubscribe())
		require.NoError(t, b.Insert(ctx, "audit", backend.Row{"ref": c.New["id"]}))
	})
	require.NoError(t, err)

	require.NoError(t, b.Insert(ctx, "messages", backend.Row{"id": "m1"}))
	require.NoError(t, b.Insert(ctx, "messages", backend.Row{"id": "m2"}))

	assert.Equal(t, 1, calls)
	assert.Len(t, b.Rows("audit"), 1)
}
