package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCachedVerifier is an optional L2 in front of a Verifier, shared
// across gateway replicas so a token verified by one instance doesn't
// re-hit the identity service from another. The in-process IdentityCache
// still sits in front of this as a per-process L1; this file is only
// reached on that cache's miss. Falls back transparently to inner on any
// Redis error, since the identity service remains the source of truth.
type redisCachedVerifier struct {
	inner      Verifier
	client     *redis.Client
	successTTL time.Duration
	failureTTL time.Duration
}

// NewRedisCachedVerifier wraps inner with a Redis-backed cache at redisURL.
// Returns inner unchanged if redisURL is empty.
func NewRedisCachedVerifier(inner Verifier, redisURL string, successTTL, failureTTL time.Duration) Verifier {
	if redisURL == "" {
		return inner
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("gateway: invalid REDIS_URL, falling back to in-process identity cache only: %v", err)
		return inner
	}
	return &redisCachedVerifier{inner: inner, client: redis.NewClient(opts), successTTL: successTTL, failureTTL: failureTTL}
}

type redisIdentityRecord struct {
	AgentName string `json:"agentName"`
	Wallet    string `json:"wallet"`
	Valid     bool   `json:"valid"`
}

func (v *redisCachedVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	key := "gateway:identity:" + token

	if raw, err := v.client.Get(ctx, key).Result(); err == nil {
		var rec redisIdentityRecord
		if jsonErr := json.Unmarshal([]byte(raw), &rec); jsonErr == nil {
			if rec.Valid {
				return Identity{AgentName: rec.AgentName, Wallet: rec.Wallet}, nil
			}
			return Identity{}, ErrInvalidToken
		}
	}

	identity, err := v.inner.Verify(ctx, token)

	rec := redisIdentityRecord{AgentName: identity.AgentName, Wallet: identity.Wallet, Valid: err == nil}
	ttl := v.successTTL
	if err != nil {
		ttl = v.failureTTL
	}
	if raw, marshalErr := json.Marshal(rec); marshalErr == nil {
		if setErr := v.client.Set(ctx, key, raw, ttl).Err(); setErr != nil {
			log.Printf("gateway: redis identity cache write failed: %v", setErr)
		}
	}

	return identity, err
}
