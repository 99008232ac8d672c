package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"

	"gatecheck/internal/token"
)

var (
	ErrBadCredentials = errors.New("wrong password")
	ErrNoSession      = errors.New("missing or expired session")
)

// CredentialChecker abstracts the access gate so the shared static
// password can later be replaced by a real auth provider without touching
// the lifecycle engine or handlers.
type CredentialChecker interface {
	Check(ctx context.Context, password string) error
}

// StaticPassword checks against a single bcrypt hash from configuration.
// Not an identity system; one shared password gates the whole organizer
// dashboard.
type StaticPassword struct {
	hash []byte
}

func NewStaticPassword(bcryptHash string) *StaticPassword {
	return &StaticPassword{hash: []byte(bcryptHash)}
}

func (s *StaticPassword) Check(_ context.Context, password string) error {
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// Session is issued on login and carried by every organizer request in
// the X-Session-Token header.
type Session struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// Sessions stores organizer sessions in redis with a sliding TTL.
type Sessions struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessions(client *redis.Client, ttl time.Duration) *Sessions {
	return &Sessions{client: client, ttl: ttl}
}

func sessionKey(tok string) string { return "session:" + tok }

func (s *Sessions) Create(ctx context.Context) (*Session, error) {
	tok, err := token.Generate()
	if err != nil {
		return nil, err
	}
	sess := &Session{Token: tok, CreatedAt: time.Now()}
	if err := s.client.Set(ctx, sessionKey(tok), sess.CreatedAt.Unix(), s.ttl).Err(); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Sessions) Validate(ctx context.Context, tok string) error {
	if tok == "" {
		return ErrNoSession
	}
	if err := s.client.Get(ctx, sessionKey(tok)).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoSession
		}
		return err
	}
	// sliding expiry
	_ = s.client.Expire(ctx, sessionKey(tok), s.ttl).Err()
	return nil
}

func (s *Sessions) Destroy(ctx context.Context, tok string) error {
	return s.client.Del(ctx, sessionKey(tok)).Err()
}

// Store is what the middleware needs; Sessions and the in-memory variant
// both satisfy it.
type Store interface {
	Create(ctx context.Context) (*Session, error)
	Validate(ctx context.Context, tok string) error
	Destroy(ctx context.Context, tok string) error
}
