package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// LocalStore keeps pages in process using a sturdyc client.
type LocalStore struct {
	client *sturdyc.Client[Entry]
	cfg    Config
}

// NewLocalStore creates the L1 tier. cfg.Local must be set.
//
// Capacity, NumShards, TTL and EvictionPercentage are passed to sturdyc.New;
// the rest is applied through ToSturdycOptions.
func NewLocalStore(cfg Config) (*LocalStore, error) {
	if cfg.Local == nil {
		return nil, &ConfigError{Field: "Local", Message: "is required for the local store"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	local := *cfg.Local
	client := sturdyc.New[Entry](
		local.Capacity,
		local.NumShards,
		local.TTL,
		local.EvictionPercentage,
		local.ToSturdycOptions()...,
	)
	return &LocalStore{client: client, cfg: cfg}, nil
}

func (s *LocalStore) Get(ctx context.Context, fingerprint, token string) ([]byte, error) {
	e, err := s.GetEntry(ctx, fingerprint, token)
	if err != nil {
		return nil, err
	}
	return e.Payload, nil
}

// GetEntry returns the full envelope for key fingerprint:token.
func (s *LocalStore) GetEntry(_ context.Context, fingerprint, token string) (Entry, error) {
	key := Key(fingerprint, token)
	e, ok := s.client.Get(key)
	if !ok {
		return Entry{}, ErrMiss
	}
	if e.Expired(s.cfg.now()) {
		s.client.Delete(key)
		return Entry{}, ErrMiss
	}
	return e, nil
}

func (s *LocalStore) Put(ctx context.Context, fingerprint, token string, payload []byte, ttl time.Duration) error {
	return s.PutEntry(ctx, fingerprint, token, Entry{
		StoredAt: s.cfg.now(),
		TTL:      ttl,
		Payload:  payload,
	})
}

// PutEntry stores e as is, keeping its StoredAt. The tiered store uses it to
// copy L2 hits into L1 without extending their lifetime.
func (s *LocalStore) PutEntry(_ context.Context, fingerprint, token string, e Entry) error {
	s.client.Set(Key(fingerprint, token), e)
	return nil
}

// Evict removes every page cached for fingerprint.
func (s *LocalStore) Evict(_ context.Context, fingerprint string) error {
	prefix := fingerprint + KeySeparator
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

func (s *LocalStore) EvictAll(_ context.Context) error {
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
	return nil
}

// Len reports the number of entries currently held.
func (s *LocalStore) Len() int {
	return s.client.Size()
}

func (s *LocalStore) Ping(context.Context) error { return nil }

func (s *LocalStore) Close() error { return nil }
