package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/market/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	RoleConsumer = "consumer"
	RoleMarket   = "market"

	CookieName = "session_id"

	defaultTTL = 24 * time.Hour
	tokenBytes = 32
)

var ErrSessionNotFound = errors.New("session not found")

type Session struct {
	ID         string `json:"id"`
	ConsumerID int64  `json:"consumer_id"`
	Role       string `json:"role"`
	City       string `json:"city"`
	District   string `json:"district"`
	CSRFToken  string `json:"csrf_token"`
}

func (s *Session) Consumer() domain.Consumer {
	return domain.Consumer{ID: s.ConsumerID, City: s.City, District: s.District}
}

// ValidToken compares token with the session's CSRF token in constant time.
func (s *Session) ValidToken(token string) bool {
	if token == "" || s.CSRFToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.CSRFToken)) == 1
}

type Store interface {
	Create(ctx context.Context, s Session) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Create assigns a fresh session id and CSRF token and stores the session.
func (r *RedisStore) Create(ctx context.Context, s Session) (*Session, error) {
	token, err := NewCSRFToken()
	if err != nil {
		return nil, err
	}
	s.ID = uuid.New().String()
	s.CSRFToken = token

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session failed: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), data, r.ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis set failed: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// NewCSRFToken returns 32 random bytes, hex encoded.
func NewCSRFToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func sessionKey(id string) string {
	return "session:" + id
}
