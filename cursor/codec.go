package cursor

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-repository-pager/query"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidCursor is returned for any token that cannot be decoded, fails
// its integrity check, or belongs to a different query.
var ErrInvalidCursor = errors.New("cursor: invalid cursor")

const (
	payloadVersion = 1
	checksumSize   = 8
	// DefaultMaxTokenSize bounds the accepted token length.
	DefaultMaxTokenSize = 4096
)

var tokenEncoding = base64.RawURLEncoding

// Cursor is a decoded position in an ordered result set.
type Cursor struct {
	Fingerprint string
	// Values holds one normalized value per field of the normalized sort.
	Values    []any
	Direction query.Direction
}

type payload struct {
	Version     uint8  `msgpack:"v"`
	Fingerprint string `msgpack:"f"`
	Direction   int8   `msgpack:"d"`
	Values      []any  `msgpack:"k"`
}

// Codec turns cursors into opaque URL safe tokens and back.
type Codec struct {
	secret       []byte
	maxTokenSize int
}

// Option configures a Codec.
type Option func(*Codec)

// WithSecret mixes secret into the checksum so tokens minted by another
// deployment do not verify.
func WithSecret(secret []byte) Option {
	return func(c *Codec) {
		c.secret = append([]byte(nil), secret...)
	}
}

// WithMaxTokenSize overrides DefaultMaxTokenSize.
func WithMaxTokenSize(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxTokenSize = n
		}
	}
}

func NewCodec(opts ...Option) *Codec {
	c := &Codec{maxTokenSize: DefaultMaxTokenSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode serializes a cursor for fingerprint. Values must be the sort key of
// the boundary row as produced by a query.KeyExtractor.
func (c *Codec) Encode(fingerprint string, values []any, dir query.Direction) (string, error) {
	if fingerprint == "" {
		return "", errors.New("cursor: empty fingerprint")
	}
	if !dir.Valid() {
		return "", fmt.Errorf("cursor: unknown direction %d", dir)
	}

	body, err := msgpack.Marshal(payload{
		Version:     payloadVersion,
		Fingerprint: fingerprint,
		Direction:   int8(dir),
		Values:      values,
	})
	if err != nil {
		return "", fmt.Errorf("cursor: encode payload: %w", err)
	}

	buf := make([]byte, len(body), len(body)+checksumSize)
	copy(buf, body)
	buf = binary.BigEndian.AppendUint64(buf, c.checksum(body))
	return tokenEncoding.EncodeToString(buf), nil
}

// Decode parses token and checks that it was produced for expectedFingerprint.
// Values are coerced to the kinds declared by sort, which must be the
// normalized sort of the query (tie breaker included).
func (c *Codec) Decode(token, expectedFingerprint string, sort []query.SortField) (Cursor, error) {
	if token == "" {
		return Cursor{}, fmt.Errorf("%w: empty token", ErrInvalidCursor)
	}
	if len(token) > c.maxTokenSize {
		return Cursor{}, fmt.Errorf("%w: token exceeds %d bytes", ErrInvalidCursor, c.maxTokenSize)
	}

	raw, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: malformed encoding", ErrInvalidCursor)
	}
	if len(raw) <= checksumSize {
		return Cursor{}, fmt.Errorf("%w: token too short", ErrInvalidCursor)
	}

	body, sum := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]
	if binary.BigEndian.Uint64(sum) != c.checksum(body) {
		return Cursor{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidCursor)
	}

	var p payload
	if err := msgpack.Unmarshal(body, &p); err != nil {
		return Cursor{}, fmt.Errorf("%w: malformed payload", ErrInvalidCursor)
	}
	if p.Version != payloadVersion {
		return Cursor{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidCursor, p.Version)
	}
	if p.Fingerprint != expectedFingerprint {
		return Cursor{}, fmt.Errorf("%w: cursor belongs to another query", ErrInvalidCursor)
	}

	dir := query.Direction(p.Direction)
	if !dir.Valid() {
		return Cursor{}, fmt.Errorf("%w: unknown direction %d", ErrInvalidCursor, p.Direction)
	}

	values, err := query.NormalizeAll(sort, p.Values)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	return Cursor{
		Fingerprint: p.Fingerprint,
		Values:      values,
		Direction:   dir,
	}, nil
}

func (c *Codec) checksum(body []byte) uint64 {
	if len(c.secret) == 0 {
		return xxhash.Sum64(body)
	}
	d := xxhash.New()
	_, _ = d.Write(c.secret)
	_, _ = d.Write(body)
	return d.Sum64()
}
