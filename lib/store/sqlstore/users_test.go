package sqlstore

import (
	"context"
	"testing"

	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, s.NewUser(ctx, store.User{
		Username:    "alice",
		TokenHash:   "hash-1",
		Permissions: []string{"@read", "@report"},
	}))

	err = s.NewUser(ctx, store.User{Username: "alice", TokenHash: "x"})
	requireCode(t, err, store.RetCConstraint)

	u, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "hash-1", u.TokenHash)
	assert.Equal(t, []string{"@read", "@report"}, u.Permissions)

	require.NoError(t, s.SetUserPerms(ctx, "alice", nil))
	require.NoError(t, s.SetUserToken(ctx, "alice", "hash-2"))

	u, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, u.Permissions)
	assert.Equal(t, "hash-2", u.TokenHash)

	require.NoError(t, s.DeleteUser(ctx, "alice"))
	requireCode(t, s.DeleteUser(ctx, "alice"), store.RetCNotFound)
	requireCode(t, s.SetUserPerms(ctx, "alice", nil), store.RetCNotFound)
}

func TestGetAllUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	users, err := s.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	for _, name := range []string{"carol", "alice", "bob"} {
		require.NoError(t, s.NewUser(ctx, store.User{Username: name, TokenHash: "h"}))
	}

	users, err = s.GetAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "carol", users[2].Username)
}

func TestNewUserValidation(t *testing.T) {
	s := newTestStore(t)
	requireCode(t, s.NewUser(context.Background(), store.User{}), store.RetCInvalidOperation)
}
