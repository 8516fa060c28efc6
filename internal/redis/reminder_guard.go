package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReminderGuard marks appointments whose reminder has gone out so that several
// worker replicas send it once. Keys expire after ttl.
type ReminderGuard struct {
	client *redis.Client
	ttl    time.Duration
	owner  string
}

func NewReminderGuard(client *redis.Client, ttl time.Duration) *ReminderGuard {
	return &ReminderGuard{
		client: client,
		ttl:    ttl,
		owner:  uuid.NewString(),
	}
}

func reminderKey(appointmentID uuid.UUID) string {
	return fmt.Sprintf("reminder:appointment:%s", appointmentID.String())
}

// Acquire returns false when another worker already claimed the reminder.
func (g *ReminderGuard) Acquire(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	ok, err := g.client.SetNX(ctx, reminderKey(appointmentID), g.owner, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire reminder guard: %w", err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// Release drops a claim this guard holds so a later run can retry. Claims held
// by other workers are left alone.
func (g *ReminderGuard) Release(ctx context.Context, appointmentID uuid.UUID) error {
	_, err := releaseScript.Run(ctx, g.client, []string{reminderKey(appointmentID)}, g.owner).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release reminder guard: %w", err)
	}
	return nil
}
