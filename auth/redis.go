package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/go-redis/redis/v8"
	"github.com/lefinal/confcomp-server/errors"
	"time"
)

// sessionKeyPrefix is the prefix for session keys in Redis.
const sessionKeyPrefix = "confcomp:session:"

// RedisSessionStore is a SessionStore that keeps sessions in Redis with the
// session expiry as TTL.
type RedisSessionStore struct {
	client redis.UniversalClient
	// now returns the current time.
	now func() time.Time
}

// NewRedisSessionStore creates a new RedisSessionStore using the given client.
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		now:    time.Now,
	}
}

func sessionKey(token string) string {
	return fmt.Sprintf("%s%s", sessionKeyPrefix, token)
}

// SaveSession saves the Session with its remaining lifetime as TTL.
func (s *RedisSessionStore) SaveSession(ctx context.Context, session Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.NewBadRequestErr("session already expired", nil, errors.Details{"expires_at": session.ExpiresAt})
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "marshal session", nil)
	}
	err = s.client.Set(ctx, sessionKey(session.Token), raw, ttl).Err()
	if err != nil {
		return errors.FromErr("set session in redis", errors.ErrCommunication, err, nil)
	}
	return nil
}

// SessionByToken retrieves the Session with the given token.
func (s *RedisSessionStore) SessionByToken(ctx context.Context, token string) (Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Session{}, errors.NewResourceNotFoundError("session not found", nil)
		}
		return Session{}, errors.FromErr("get session from redis", errors.ErrCommunication, err, nil)
	}
	var session Session
	err = json.Unmarshal(raw, &session)
	if err != nil {
		return Session{}, errors.NewInternalErrorFromErr(err, "unmarshal session", errors.Details{"raw": string(raw)})
	}
	return session, nil
}

// DeleteSession deletes the Session with the given token.
func (s *RedisSessionStore) DeleteSession(ctx context.Context, token string) error {
	err := s.client.Del(ctx, sessionKey(token)).Err()
	if err != nil {
		return errors.FromErr("delete session from redis", errors.ErrCommunication, err, nil)
	}
	return nil
}
