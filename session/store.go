package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps every Redis transport failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned for missing or expired sessions.
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned when [Store.Update] keeps losing the optimistic race.
	ErrConflict = errors.New("session update conflict")
	// ErrInvalidID is returned for identifiers that are not session IDs.
	ErrInvalidID = errors.New("invalid session id")
)

const maxUpdateRetries = 8

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store persists [Session] records in Redis under "<prefix>:<id>". Live IDs
// are indexed in the sorted set "<prefix>:live", scored by ExpiresAt.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore returns a Store. An empty prefix defaults to "sess".
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "sess"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// NewID returns a fresh random session identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the shape produced by [NewID].
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) liveKey() string {
	return s.prefix + ":live"
}

// Save writes sess with the given TTL and indexes it as live. CreatedAt and
// ExpiresAt are filled when zero.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess == nil || !ValidID(sess.SessionID) {
		return ErrInvalidID
	}
	now := s.now()
	if sess.CreatedAt == 0 {
		sess.CreatedAt = now.Unix()
	}
	if sess.ExpiresAt == 0 {
		sess.ExpiresAt = now.Add(ttl).Unix()
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.ZAdd(ctx, s.liveKey(), redis.Z{Score: float64(sess.ExpiresAt), Member: sess.SessionID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session. Records past ExpiresAt are deleted and reported as
// [ErrNotFound].
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	if !ValidID(sessionID) {
		return nil, ErrInvalidID
	}
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	if sess.ExpiresAt > 0 && s.now().Unix() >= sess.ExpiresAt {
		if err := s.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return sess, nil
}

// Update applies fn to the stored session under WATCH and writes the result
// back, keeping the key's TTL. An error from fn aborts the update and is
// returned unchanged.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(*Session) error) error {
	if !ValidID(sessionID) {
		return ErrInvalidID
	}
	key := s.key(sessionID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := Decode(data)
		if err != nil {
			return err
		}
		sess.SessionID = sessionID

		if err := fn(sess); err != nil {
			return err
		}

		out, err := Encode(sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

// Extend moves the key TTL and ExpiresAt to now+ttl.
func (s *Store) Extend(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be > 0")
	}
	expiresAt := s.now().Add(ttl).Unix()
	if err := s.Update(ctx, sessionID, func(sess *Session) error {
		sess.ExpiresAt = expiresAt
		return nil
	}); err != nil {
		return err
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, s.key(sessionID), ttl)
		pipe.ZAddXX(ctx, s.liveKey(), redis.Z{Score: float64(expiresAt), Member: sessionID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if !ValidID(sessionID) {
		return nil
	}
	if err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID), s.liveKey()}, sessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Count returns the number of sessions whose ExpiresAt is still ahead.
// Entries of sessions that expired through their key TTL are pruned first,
// so the result does not grow with abandoned sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	cutoff := strconv.FormatInt(s.now().Unix(), 10)
	var card *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, s.liveKey(), "-inf", cutoff)
		card = pipe.ZCard(ctx, s.liveKey())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(card.Val()), nil
}

// Ping measures a Redis round trip.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
