package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caselane/caselane/pkg/auth"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, time.Hour), mr
}

func TestSessionRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, auth.OrgUser{ID: 12, OrganizationID: 3, Name: "Jane Doe", Role: auth.RoleOrgAdmin})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.KindOrgUser, loaded.Kind)

	p, ok := loaded.Principal().(auth.OrgUser)
	require.True(t, ok)
	assert.Equal(t, int64(12), p.ID)
	assert.Equal(t, int64(3), p.OrganizationID)
	assert.True(t, p.IsAdmin())
}

func TestSessionPrincipalKinds(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	admin, err := store.Create(ctx, auth.PlatformAdmin{ID: 1, Name: "Root"})
	require.NoError(t, err)
	legacy, err := store.Create(ctx, auth.LegacyUser{ID: 4, Name: "Old Timer", Role: "clerk"})
	require.NoError(t, err)

	loaded, err := store.Get(ctx, admin.ID)
	require.NoError(t, err)
	_, ok := loaded.Principal().(auth.PlatformAdmin)
	assert.True(t, ok)

	loaded, err = store.Get(ctx, legacy.ID)
	require.NoError(t, err)
	lu, ok := loaded.Principal().(auth.LegacyUser)
	require.True(t, ok)
	assert.Equal(t, "clerk", lu.Role)
}

func TestSessionUnknownID(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, auth.OrgUser{ID: 12, OrganizationID: 3, Name: "Jane"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, auth.OrgUser{ID: 12, OrganizationID: 3, Name: "Jane"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, sess.ID))

	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionCorruptPayloadDropped(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	mr.Set("session:broken", "{not json")

	_, err := store.Get(ctx, "broken")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("session:broken"))
}
