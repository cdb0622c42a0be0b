package cacheinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrMiss reports an absent or stale entry.
	ErrMiss = errors.New("cache: miss")
	// ErrCacheUnavailable wraps every backend failure.
	ErrCacheUnavailable = errors.New("cache: unavailable")
)

const (
	KeySeparator = ":"
	// FirstPageToken replaces the cursor token of a forward request without a cursor.
	FirstPageToken = "first"
	// LastPageToken replaces the cursor token of a backward request without a cursor.
	LastPageToken = "last"
)

// Key returns the entry key for a page of the query identified by fingerprint.
func Key(fingerprint, token string) string {
	return fingerprint + KeySeparator + token
}

// Entry is the stored envelope of a cached page.
type Entry struct {
	StoredAt time.Time     `msgpack:"s"`
	TTL      time.Duration `msgpack:"t"`
	Payload  []byte        `msgpack:"p"`
}

// Expired reports whether the entry is stale at now. Backend expiry is not
// trusted to be exact, so every read checks this.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.StoredAt.Add(e.TTL))
}

func EncodeEntry(e Entry) ([]byte, error) {
	b, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return b, nil
}

func DecodeEntry(b []byte) (Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return e, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCacheUnavailable, op, err)
}
