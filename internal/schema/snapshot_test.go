// internal/schema/snapshot_test.go
package schema

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpnext-bridge/internal/common/logger"
	"erpnext-bridge/internal/models"
)

func newTestSnapshotStore(t *testing.T) *RedisSnapshotStore {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSnapshotStore(client, logger.NewTestLogger(t))
}

func TestRedisSnapshotStore_SaveAndLoad(t *testing.T) {
	store := newTestSnapshotStore(t)
	schema := &models.DocTypeSchema{
		DocType: "Customer",
		Fields: []models.FieldDef{
			{Name: "customer_name", FieldType: "Data", Kind: models.FieldKindText, Required: true},
			{Name: "territory", FieldType: "Link", Kind: models.FieldKindLink, Options: "Territory"},
		},
	}

	require.NoError(t, store.Save(context.Background(), schema))

	loaded, err := store.Load(context.Background(), "Customer")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Customer", loaded.DocType)
	require.Len(t, loaded.Fields, 2)
	assert.True(t, loaded.Fields[0].Required)
	assert.Equal(t, "Territory", loaded.Fields[1].LinkTarget())
}

func TestRedisSnapshotStore_LoadMissingReturnsNil(t *testing.T) {
	store := newTestSnapshotStore(t)

	loaded, err := store.Load(context.Background(), "Nope")

	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisSnapshotStore_Delete(t *testing.T) {
	store := newTestSnapshotStore(t)
	require.NoError(t, store.Save(context.Background(), &models.DocTypeSchema{DocType: "Customer"}))

	require.NoError(t, store.Delete(context.Background(), "Customer"))

	loaded, err := store.Load(context.Background(), "Customer")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
