package store

import (
	"errors"
	"time"
)

// ErrWrongType is returned by XAdd when key already holds a non-stream
// record. Unlike RPUSH/LPUSH's silent no-op for lists, XADD against the
// wrong type is reported as a domain error: there is no sensible "new
// length" style fallback reply for a stream command.
var ErrWrongType = errors.New("WRONGTYPE key holds the wrong kind of value")

// nowMillis adapts a time.Time source to streamid's NowFunc.
func nowMillis(now func() time.Time) func() uint64 {
	return func() uint64 {
		return uint64(now().UnixMilli())
	}
}
