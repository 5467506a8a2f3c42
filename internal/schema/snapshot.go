// internal/schema/snapshot.go
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"erpnext-bridge/internal/common/logger"
	"erpnext-bridge/internal/models"
)

const snapshotKeyPrefix = "bridge:schema:"

// RedisSnapshotStore persists schemas as JSON blobs in Redis. Snapshots have
// no expiry; the cache TTL governs freshness and snapshots only serve as a
// fallback when the remote store is unreachable.
type RedisSnapshotStore struct {
	client *redis.Client
	logger logger.Logger
}

func NewRedisSnapshotStore(client *redis.Client, log logger.Logger) *RedisSnapshotStore {
	return &RedisSnapshotStore{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "schema_snapshot"}),
	}
}

// NewRedisClient builds a go-redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, address, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", address, err)
	}
	return client, nil
}

func snapshotKey(doctype string) string {
	return snapshotKeyPrefix + doctype
}

func (s *RedisSnapshotStore) Save(ctx context.Context, schema *models.DocTypeSchema) error {
	payload, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(schema.DocType), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to write schema snapshot: %w", err)
	}
	s.logger.Debug("schema snapshot saved", map[string]interface{}{"doctype": schema.DocType})
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, doctype string) (*models.DocTypeSchema, error) {
	payload, err := s.client.Get(ctx, snapshotKey(doctype)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema snapshot: %w", err)
	}

	var schema models.DocTypeSchema
	if err := json.Unmarshal(payload, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema snapshot: %w", err)
	}
	return &schema, nil
}

// Delete removes a snapshot, used when a DocType is known to be gone.
func (s *RedisSnapshotStore) Delete(ctx context.Context, doctype string) error {
	return s.client.Del(ctx, snapshotKey(doctype)).Err()
}
