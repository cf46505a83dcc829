package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/maestro-platform/rbac"
)

// RedisAssignmentStore keeps each principal's assignments in a Redis hash
// (key: rbac:assignments:{principalID}, field: assignment ID, value: JSON)
// with a companion set of principal IDs for enumeration.
type RedisAssignmentStore struct {
	client *redis.Client
	keyFmt string // format string, e.g. "rbac:assignments:%s"
	setKey string
}

var _ rbac.AssignmentStore = (*RedisAssignmentStore)(nil)

func NewRedisAssignmentStore(client *redis.Client) *RedisAssignmentStore {
	return &RedisAssignmentStore{client: client, keyFmt: "rbac:assignments:%s", setKey: "rbac:principals"}
}

func (r *RedisAssignmentStore) key(principalID string) string {
	return fmt.Sprintf(r.keyFmt, principalID)
}

func (r *RedisAssignmentStore) SaveAssignment(ctx context.Context, a *rbac.RoleAssignment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key(a.PrincipalID), a.ID, string(data)).Err(); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.setKey, a.PrincipalID).Err()
}

func (r *RedisAssignmentStore) LoadAssignments(ctx context.Context) ([]*rbac.RoleAssignment, error) {
	principals, err := r.client.SMembers(ctx, r.setKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*rbac.RoleAssignment, 0)
	for _, principalID := range principals {
		fields, err := r.client.HGetAll(ctx, r.key(principalID)).Result()
		if err != nil {
			return nil, err
		}
		for _, raw := range fields {
			a := &rbac.RoleAssignment{}
			if err := json.Unmarshal([]byte(raw), a); err != nil {
				continue
			}
			out = append(out, a)
		}
	}
	return out, nil
}
