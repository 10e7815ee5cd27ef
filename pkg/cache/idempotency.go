package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// IdempotencyTTL is how long a replayable response is kept.
	IdempotencyTTL = 24 * time.Hour

	// IdempotencyClaimTTL bounds how long an unfinished claim blocks its key,
	// so a crashed request does not hold it for a full IdempotencyTTL.
	IdempotencyClaimTTL = time.Minute

	// MaxIdempotencyKeyLength bounds client-supplied keys.
	MaxIdempotencyKeyLength = 255

	idempotencyKeyPrefix = "idempotency:"
)

var (
	// ErrIdempotencyInFlight means another request holds the key and has not
	// finished yet.
	ErrIdempotencyInFlight = errors.New("idempotency: request with this key is in progress")

	// ErrIdempotencyMismatch means the key was first used with a different
	// request body.
	ErrIdempotencyMismatch = errors.New("idempotency: key reused with a different request")
)

// claimScript sets the fingerprint only if the hash does not exist yet and
// gives the fresh claim a short TTL. It returns nothing on a fresh claim and
// the existing fields otherwise, so check and claim are one round trip.
var claimScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], 'fingerprint', ARGV[1]) == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return {}
end
return redis.call('HGETALL', KEYS[1])
`)

// StoredResponse is a previously written HTTP response kept for replay.
type StoredResponse struct {
	Status int
	Body   []byte
}

// IdempotencyStore keeps responses keyed by a client-supplied Idempotency-Key.
// Keys are scoped by resource so two endpoints never collide.
// Key format: "idempotency:{scope}:{key}"
//
// Each entry is a hash: fingerprint is written by Claim, status and body
// by Complete. An entry without status is still in flight.
type IdempotencyStore struct {
	client   *RedisClient
	scope    string
	ttl      time.Duration
	claimTTL time.Duration
}

// NewIdempotencyStore creates an IdempotencyStore for scope backed by r.
func NewIdempotencyStore(r *RedisClient, scope string) *IdempotencyStore {
	return &IdempotencyStore{client: r, scope: scope, ttl: IdempotencyTTL, claimTTL: IdempotencyClaimTTL}
}

// Claim reserves key for the request identified by fingerprint.
//
// It returns (nil, nil) when the caller now owns the key and must Complete
// or Release it. A finished entry with the same fingerprint comes back for
// replay. Otherwise the error is ErrIdempotencyMismatch or
// ErrIdempotencyInFlight.
func (s *IdempotencyStore) Claim(ctx context.Context, key, fingerprint string) (*StoredResponse, error) {
	vals, err := claimScript.Run(ctx, s.client.Client(), []string{s.key(key)},
		fingerprint, s.claimTTL.Milliseconds()).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("idempotency claim: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}

	fields := make(map[string]string, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		fields[vals[i]] = vals[i+1]
	}
	return resolveClaim(fields, fingerprint)
}

// resolveClaim decides what an existing entry means for a new request.
func resolveClaim(fields map[string]string, fingerprint string) (*StoredResponse, error) {
	if fields["fingerprint"] != fingerprint {
		return nil, ErrIdempotencyMismatch
	}
	rawStatus, done := fields["status"]
	if !done {
		return nil, ErrIdempotencyInFlight
	}
	status, err := strconv.Atoi(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("idempotency parse status: %w", err)
	}
	return &StoredResponse{Status: status, Body: []byte(fields["body"])}, nil
}

// Complete records resp for a key the caller claimed and extends the entry
// to the full store TTL.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, resp *StoredResponse) error {
	k := s.key(key)
	pipe := s.client.Client().TxPipeline()
	pipe.HSet(ctx, k,
		"status", strconv.Itoa(resp.Status),
		"body", string(resp.Body),
	)
	pipe.Expire(ctx, k, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

// Release drops a claim whose request failed, so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Client().Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) key(key string) string {
	return idempotencyKeyPrefix + s.scope + ":" + key
}
