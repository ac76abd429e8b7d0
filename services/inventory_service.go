package services

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"ticketflow/internal/status"
	"ticketflow/store"
)

// reserveScript decrements the per-event capacity counter only when
// enough seats remain. Returns -2 when the counter is unseeded, -1 when
// capacity is insufficient, otherwise the remaining count.
const reserveScript = `
local key = KEYS[1]
local want = tonumber(ARGV[1])
local remaining = redis.call('GET', key)
if remaining == false then
	return -2
end
remaining = tonumber(remaining)
if remaining < want then
	return -1
end
return redis.call('DECRBY', key, want)
`

// InventoryService tracks remaining capacity per event in Redis so
// concurrent reservations never hand out the same seat twice.
type InventoryService struct {
	redis  *redis.Client
	events store.EventStore
}

func NewInventoryService(redisClient *redis.Client, events store.EventStore) *InventoryService {
	return &InventoryService{
		redis:  redisClient,
		events: events,
	}
}

func capacityKey(eventID string) string {
	return fmt.Sprintf("capacity:event:%s", eventID)
}

// Reserve atomically takes quantity seats for the event. Returns the
// remaining count after the reservation, or ErrCapacityExceeded.
func (s *InventoryService) Reserve(ctx context.Context, eventID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("reserve: quantity must be positive, got %d", quantity)
	}

	key := capacityKey(eventID)

	for attempt := 0; attempt < 2; attempt++ {
		result, err := s.redis.Eval(ctx, reserveScript, []string{key}, quantity).Int64()
		if err != nil {
			return 0, fmt.Errorf("reserve eval: %w", err)
		}

		switch {
		case result == -2:
			if err := s.seed(ctx, eventID); err != nil {
				return 0, err
			}
			continue
		case result == -1:
			return 0, status.ErrCapacityExceeded
		default:
			s.persistDelta(ctx, eventID, -quantity)
			return int(result), nil
		}
	}

	return 0, fmt.Errorf("reserve: counter for event %s could not be seeded", eventID)
}

// Release returns seats to the pool, typically after a cancellation or
// a failed confirmation.
func (s *InventoryService) Release(ctx context.Context, eventID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("release: quantity must be positive, got %d", quantity)
	}

	remaining, err := s.redis.IncrBy(ctx, capacityKey(eventID), int64(quantity)).Result()
	if err != nil {
		return 0, fmt.Errorf("release: %w", err)
	}

	s.persistDelta(ctx, eventID, quantity)
	return int(remaining), nil
}

// persistDelta trails the counter onto the event row. The counter is
// the authority; the row only has to be close enough that a reseed
// after a counter loss does not resell seats already handed out.
func (s *InventoryService) persistDelta(ctx context.Context, eventID string, delta int) {
	if err := s.events.AdjustRemainingSeats(ctx, eventID, delta); err != nil {
		log.Printf("adjust remaining seats for event %s by %d: %v\n", eventID, delta, err)
	}
}

// Remaining reads the counter without touching it. Unseeded counters
// fall back to the durable event row.
func (s *InventoryService) Remaining(ctx context.Context, eventID string) (int, error) {
	remaining, err := s.redis.Get(ctx, capacityKey(eventID)).Int()
	if err == nil {
		return remaining, nil
	}
	if err != redis.Nil {
		return 0, fmt.Errorf("remaining: %w", err)
	}

	event, err := s.events.EventByID(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return event.RemainingSeats, nil
}

// seed initializes the counter from the event row. SETNX keeps a
// concurrent seeder from clobbering decrements that already landed.
func (s *InventoryService) seed(ctx context.Context, eventID string) error {
	event, err := s.events.EventByID(ctx, eventID)
	if err != nil {
		return err
	}

	if err := s.redis.SetNX(ctx, capacityKey(eventID), event.RemainingSeats, 0).Err(); err != nil {
		return fmt.Errorf("seed capacity: %w", err)
	}
	return nil
}
