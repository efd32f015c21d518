package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrOTPNotFound indica que el codigo no existe, ya se consumio o expiro.
var ErrOTPNotFound = errors.New("otp not found or expired")

// OTPStore asocia un OTP vivo con la cuenta pendiente de verificacion.
// Claim es put-si-no-existe atomico: dos emisiones concurrentes jamas comparten
// codigo porque solo una gana el claim.
type OTPStore interface {
	Claim(ctx context.Context, code, accountID string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, code string) (string, error)
	Delete(ctx context.Context, code string) error
}

type memoryOTPEntry struct {
	accountID string
	expiresAt time.Time
}

type memoryOTPStore struct {
	mu    sync.Mutex
	items map[string]memoryOTPEntry
}

// NewMemoryOTPStore crea un store en memoria con expiracion perezosa.
// Util para desarrollo y tests; en produccion se usa la variante redis.
func NewMemoryOTPStore() OTPStore {
	return &memoryOTPStore{items: make(map[string]memoryOTPEntry)}
}

func (s *memoryOTPStore) Claim(_ context.Context, code, accountID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if entry, ok := s.items[code]; ok && now.Before(entry.expiresAt) {
		return false, nil
	}
	s.items[code] = memoryOTPEntry{accountID: accountID, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *memoryOTPStore) Get(_ context.Context, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[code]
	if !ok {
		return "", ErrOTPNotFound
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(s.items, code)
		return "", ErrOTPNotFound
	}
	return entry.accountID, nil
}

func (s *memoryOTPStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, code)
	return nil
}

// redisOTPKV es el subconjunto de comandos redis que usa el store; como
// interfaz para poder simular el cliente en tests.
type redisOTPKV interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisOTPStore struct {
	client redisOTPKV
	prefix string
}

// NewRedisOTPStore crea un store respaldado en redis. SETNX con TTL cierra la
// ventana entre chequear y escribir que tendria un exists+set por separado.
func NewRedisOTPStore(client *redis.Client) OTPStore {
	if client == nil {
		return nil
	}
	return &redisOTPStore{client: client, prefix: "otp:code:"}
}

func (s *redisOTPStore) Claim(ctx context.Context, code, accountID string, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(code) == "" {
		return false, nil
	}
	return s.client.SetNX(ctx, s.prefix+code, accountID, ttl).Result()
}

func (s *redisOTPStore) Get(ctx context.Context, code string) (string, error) {
	accountID, err := s.client.Get(ctx, s.prefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrOTPNotFound
	}
	if err != nil {
		return "", err
	}
	return accountID, nil
}

func (s *redisOTPStore) Delete(ctx context.Context, code string) error {
	return s.client.Del(ctx, s.prefix+code).Err()
}
