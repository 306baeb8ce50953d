// Package record defines the typed value union held behind each keyspace
// entry: a string, a list, or a stream, plus an optional absolute
// expiration instant.
package record

import "time"

// Type names a record's value kind. TypeNone is reserved for the "missing
// key" result at the store layer; no record ever actually holds it.
type Type string

const (
	TypeNone   Type = "none"
	TypeString Type = "string"
	TypeList   Type = "list"
	TypeStream Type = "stream"
)

// Record is one keyspace entry. Exactly one of the Str/List/Stream fields
// is meaningful, selected by Kind; which one is decided at creation and
// never changes for the life of the key.
type Record struct {
	Kind Type

	Str  string
	List []string

	// Stream holds an opaque pointer to the stream's storage (an
	// *store.streamValue); record stays storage-agnostic so this package
	// has no dependency on the stream entry radix tree.
	Stream any

	expireAt time.Time
	hasTTL   bool
}

// NewString builds a string record, optionally with an absolute expiry.
func NewString(val string, expireAt time.Time, hasTTL bool) *Record {
	return &Record{Kind: TypeString, Str: val, expireAt: expireAt, hasTTL: hasTTL}
}

// NewList builds an empty list record.
func NewList() *Record {
	return &Record{Kind: TypeList}
}

// NewStream builds a stream record around caller-owned storage.
func NewStream(storage any) *Record {
	return &Record{Kind: TypeStream, Stream: storage}
}

// IsExpired reports whether r carries an expiry that lies at or before
// now. A record with no TTL is never expired.
func (r *Record) IsExpired(now time.Time) bool {
	return r.hasTTL && !r.expireAt.After(now)
}

// SetExpireAt overwrites the record's expiration; hasTTL false clears any
// previous TTL. The store's SET does not use it: it replaces the whole
// record with a fresh one instead.
func (r *Record) SetExpireAt(expireAt time.Time, hasTTL bool) {
	r.expireAt, r.hasTTL = expireAt, hasTTL
}

// TypeName returns the record's type string as reported by the TYPE
// command.
func (r *Record) TypeName() string {
	if r == nil {
		return string(TypeNone)
	}
	return string(r.Kind)
}
