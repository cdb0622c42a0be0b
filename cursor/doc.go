// Package cursor encodes pagination positions as opaque tokens.
//
// A token carries the query fingerprint, the traversal direction and the sort
// key values of the boundary row, serialized with msgpack and protected by an
// xxhash checksum. It never carries offsets, so concurrent inserts outside the
// visited range do not shift later pages.
//
//	codec := cursor.NewCodec()
//	token, err := codec.Encode(spec.Fingerprint(), lastKey, query.Forward)
//	...
//	c, err := codec.Decode(token, spec.Fingerprint(), spec.Normalized())
//
// Decode fails with ErrInvalidCursor for tokens produced by another query.
package cursor
