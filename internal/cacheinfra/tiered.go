package cacheinfra

import (
	"context"
	"errors"
	"time"
)

// TieredStore puts a LocalStore (L1) in front of a RedisStore (L2). Reads
// check L1 first and copy L2 hits into L1. Writes go to both tiers.
// Evictions clear both tiers and, when a broadcaster is set, every peer L1.
type TieredStore struct {
	l1 *LocalStore
	l2 *RedisStore
	bc *Broadcaster
}

// NewTieredStore creates a two level store. bc may be nil.
func NewTieredStore(l1 *LocalStore, l2 *RedisStore, bc *Broadcaster) *TieredStore {
	return &TieredStore{l1: l1, l2: l2, bc: bc}
}

func (t *TieredStore) Get(ctx context.Context, fingerprint, token string) ([]byte, error) {
	if e, err := t.l1.GetEntry(ctx, fingerprint, token); err == nil {
		return e.Payload, nil
	}

	e, err := t.l2.GetEntry(ctx, fingerprint, token)
	if err != nil {
		return nil, err
	}
	_ = t.l1.PutEntry(ctx, fingerprint, token, e)
	return e.Payload, nil
}

func (t *TieredStore) Put(ctx context.Context, fingerprint, token string, payload []byte, ttl time.Duration) error {
	if err := t.l2.Put(ctx, fingerprint, token, payload, ttl); err != nil {
		return err
	}
	return t.l1.Put(ctx, fingerprint, token, payload, ttl)
}

func (t *TieredStore) Evict(ctx context.Context, fingerprint string) error {
	_ = t.l1.Evict(ctx, fingerprint)
	err := t.l2.Evict(ctx, fingerprint)
	if t.bc != nil {
		if perr := t.bc.Publish(ctx, fingerprint); perr != nil {
			err = errors.Join(err, perr)
		}
	}
	return err
}

func (t *TieredStore) EvictAll(ctx context.Context) error {
	_ = t.l1.EvictAll(ctx)
	err := t.l2.EvictAll(ctx)
	if t.bc != nil {
		if perr := t.bc.PublishAll(ctx); perr != nil {
			err = errors.Join(err, perr)
		}
	}
	return err
}

func (t *TieredStore) Ping(ctx context.Context) error {
	return t.l2.Ping(ctx)
}

func (t *TieredStore) Close() error {
	_ = t.l1.Close()
	if t.bc != nil {
		_ = t.bc.Close()
	}
	return t.l2.Close()
}
