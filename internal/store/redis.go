package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/mossy-p/reunion/internal/models"
	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

const (
	keyPrefix    = "reunion:"
	roomIndexKey = keyPrefix + "rooms"
)

func roomKey(roomID string) string { return keyPrefix + "room:" + roomID }

func candidatesKey(roomID string, from models.Side) string {
	return roomKey(roomID) + ":candidates:" + string(from)
}

func backupKey(roomID string) string { return roomKey(roomID) + ":backup" }

func transcriptKey(roomID string) string { return keyPrefix + "transcript:" + roomID }

// RedisStore keeps each room in a hash (offer, answer, createdAt) plus one
// list per side for candidates. Every write refreshes the TTL of all the
// room's keys, so an idle room expires on its own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps a connected client. ttl is the inactivity window.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// touch refreshes the expiry of every live key of a room.
func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, roomID string) {
	pipe.Expire(ctx, roomKey(roomID), s.ttl)
	pipe.Expire(ctx, candidatesKey(roomID, models.SideCaller), s.ttl)
	pipe.Expire(ctx, candidatesKey(roomID, models.SideCallee), s.ttl)
	pipe.Expire(ctx, backupKey(roomID), s.ttl)
}

func (s *RedisStore) PutOffer(ctx context.Context, roomID, sdp string) error {
	key := roomKey(roomID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "createdAt", time.Now().UnixMilli())
		pipe.HSet(ctx, key, "offer", sdp)
		pipe.HDel(ctx, key, "answer")
		pipe.Del(ctx, candidatesKey(roomID, models.SideCaller), candidatesKey(roomID, models.SideCallee))
		pipe.SAdd(ctx, roomIndexKey, roomID)
		s.touch(ctx, pipe, roomID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store offer: %w", err)
	}
	return nil
}

func (s *RedisStore) Offer(ctx context.Context, roomID string) (string, error) {
	return s.field(ctx, roomID, "offer")
}

// writeWithOffer runs fn in a transaction that only commits while the
// room still has an offer.
func (s *RedisStore) writeWithOffer(ctx context.Context, roomID string, fn func(pipe redis.Pipeliner)) error {
	key := roomKey(roomID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, key, "offer").Result()
		if err != nil {
			return err
		}
		if !exists {
			return ErrNoOffer
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			fn(pipe)
			s.touch(ctx, pipe, roomID)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) PutAnswer(ctx context.Context, roomID, sdp string) error {
	return s.writeWithOffer(ctx, roomID, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, roomKey(roomID), "answer", sdp)
	})
}

func (s *RedisStore) Answer(ctx context.Context, roomID string) (string, error) {
	return s.field(ctx, roomID, "answer")
}

func (s *RedisStore) field(ctx context.Context, roomID, name string) (string, error) {
	value, err := s.client.HGet(ctx, roomKey(roomID), name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return value, nil
}

func (s *RedisStore) AppendCandidate(ctx context.Context, roomID string, from models.Side, candidate json.RawMessage) error {
	return s.writeWithOffer(ctx, roomID, func(pipe redis.Pipeliner) {
		pipe.RPush(ctx, candidatesKey(roomID, from), string(candidate))
	})
}

func (s *RedisStore) Candidates(ctx context.Context, roomID string, from models.Side) ([]json.RawMessage, error) {
	values, err := s.client.LRange(ctx, candidatesKey(roomID, from), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}
	candidates := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		candidates = append(candidates, json.RawMessage(v))
	}
	return candidates, nil
}

func (s *RedisStore) State(ctx context.Context, roomID string) (models.RoomState, error) {
	values, err := s.client.HMGet(ctx, roomKey(roomID), "offer", "answer").Result()
	if err != nil {
		return models.RoomState{}, fmt.Errorf("failed to read room state: %w", err)
	}
	return models.RoomState{
		RoomID:    roomID,
		HasOffer:  nonEmpty(values[0]),
		HasAnswer: nonEmpty(values[1]),
	}, nil
}

func (s *RedisStore) List(ctx context.Context, openOnly bool) ([]models.RoomSummary, error) {
	ids, err := s.client.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	rooms := make([]models.RoomSummary, 0, len(ids))
	for _, id := range ids {
		values, err := s.client.HMGet(ctx, roomKey(id), "offer", "answer", "createdAt").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read room %s: %w", id, err)
		}
		if values[0] == nil && values[1] == nil && values[2] == nil {
			// Expired by TTL; drop it from the index.
			s.client.SRem(ctx, roomIndexKey, id)
			continue
		}

		summary := models.RoomSummary{
			RoomID:    id,
			HasOffer:  nonEmpty(values[0]),
			HasAnswer: nonEmpty(values[1]),
		}
		if raw, ok := values[2].(string); ok {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				summary.CreatedAt = time.UnixMilli(ms).UTC()
			}
		}
		if openOnly && (!summary.HasOffer || summary.HasAnswer) {
			continue
		}
		rooms = append(rooms, summary)
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (s *RedisStore) Backup(ctx context.Context, roomID string, messages []models.ChatMessage) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return s.writeWithOffer(ctx, roomID, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, backupKey(roomID), data, s.ttl)
	})
}

func (s *RedisStore) Finalize(ctx context.Context, roomID string, messages []models.ChatMessage) error {
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, transcriptKey(roomID), data, 0)
		s.deleteLive(ctx, pipe, roomID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to finalize room: %w", err)
	}
	return nil
}

func (s *RedisStore) Transcript(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	for _, key := range []string{transcriptKey(roomID), backupKey(roomID)} {
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read transcript: %w", err)
		}
		var messages []models.ChatMessage
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("failed to parse transcript: %w", err)
		}
		return messages, nil
	}
	return []models.ChatMessage{}, nil
}

func (s *RedisStore) Delete(ctx context.Context, roomID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.deleteLive(ctx, pipe, roomID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

func (s *RedisStore) deleteLive(ctx context.Context, pipe redis.Pipeliner, roomID string) {
	pipe.Del(ctx,
		roomKey(roomID),
		candidatesKey(roomID, models.SideCaller),
		candidatesKey(roomID, models.SideCallee),
		backupKey(roomID),
	)
	pipe.SRem(ctx, roomIndexKey, roomID)
}

func nonEmpty(v interface{}) bool {
	s, ok := v.(string)
	return ok && s != ""
}
