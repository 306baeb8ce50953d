// Package store implements the concurrent keyspace engine: a map from key
// to typed record, fine-grained per-key locking, lazy expiration, and the
// wait-queue machinery behind blocking pop.
package store

import (
	"sync"
	"time"

	"github.com/alphadose/haxmap"

	"github.com/fenwick-labs/keydb/internal/record"
	"github.com/fenwick-labs/keydb/internal/streamid"
)

// lockStripes is the width of the mutex striping used only to serialize
// the "create a cell if one is missing" step; it is not held during any
// record mutation. A prime count spreads keys more evenly than a power
// of two against simple hash functions.
const lockStripes = 127

// cell is the keyspace's unit of locking: one record slot, one mutex.
// No store operation ever holds more than one cell's lock at a time,
// matching the "no operation holds more than one key's lock" invariant.
type cell struct {
	mu  sync.Mutex
	rec *record.Record
}

// streamValue is the storage behind a TypeStream record. It is plain
// data, not a record.Record field with its own lock: all access goes
// through the owning cell's mutex, so a second lock here would be
// redundant and would violate the one-lock-per-operation invariant.
type streamValue struct {
	root   rxNode
	lastID streamid.ID
}

// Store is the process-wide keyspace: one concurrent map of cells, plus
// the sibling wait-queue table used by BLPOP.
type Store struct {
	cells   *haxmap.Map[string, *cell]
	stripes [lockStripes]sync.Mutex
	waiters *waitQueues
	now     func() time.Time
}

// New builds an empty store. now defaults to time.Now; tests may
// substitute a deterministic clock.
func New() *Store {
	return &Store{
		cells:   haxmap.New[string, *cell](),
		waiters: newWaitQueues(),
		now:     time.Now,
	}
}

func (s *Store) stripeFor(key string) *sync.Mutex {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return &s.stripes[h%lockStripes]
}

// getOrCreateCell returns the cell for key, creating an empty one if
// absent. The double-checked lock under a striped mutex keeps the common
// case (key already present) lock-free while serializing the rare
// concurrent-first-write race on a given key.
func (s *Store) getOrCreateCell(key string) *cell {
	if c, ok := s.cells.Get(key); ok {
		return c
	}
	lock := s.stripeFor(key)
	lock.Lock()
	defer lock.Unlock()
	if c, ok := s.cells.Get(key); ok {
		return c
	}
	c := &cell{}
	s.cells.Set(key, c)
	return c
}

// liveRecord returns c.rec if present and not expired, discarding it (as
// a side effect) if it has expired. Caller must hold c.mu.
func (s *Store) liveRecord(c *cell) *record.Record {
	if c.rec == nil {
		return nil
	}
	if c.rec.IsExpired(s.now()) {
		c.rec = nil
		return nil
	}
	return c.rec
}

// Set unconditionally installs a string record at key, replacing whatever
// was there before (including its type and any TTL).
func (s *Store) Set(key, value string, expireAt time.Time, hasTTL bool) {
	c := s.getOrCreateCell(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec = record.NewString(value, expireAt, hasTTL)
}

// Get returns the string at key, or ("", false) if absent, expired, or
// non-string.
func (s *Store) Get(key string) (string, bool) {
	c, ok := s.cells.Get(key)
	if !ok {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := s.liveRecord(c)
	if rec == nil || rec.Kind != record.TypeString {
		return "", false
	}
	return rec.Str, true
}

// TypeOf reports the static type name of key's record.
func (s *Store) TypeOf(key string) string {
	c, ok := s.cells.Get(key)
	if !ok {
		return string(record.TypeNone)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := s.liveRecord(c)
	return rec.TypeName()
}

// RPush appends vals to the list at key, creating an empty list if key
// is missing. A non-list existing key is a silent no-op, reporting 0.
func (s *Store) RPush(key string, vals ...string) int {
	return s.push(key, true, vals...)
}

// LPush is RPush's mirror, prepending each of vals in argument order (so
// the last argument ends up at the head).
func (s *Store) LPush(key string, vals ...string) int {
	return s.push(key, false, vals...)
}

func (s *Store) push(key string, atTail bool, vals ...string) int {
	c := s.getOrCreateCell(key)
	c.mu.Lock()
	rec := s.liveRecord(c)
	if rec == nil {
		rec = record.NewList()
		c.rec = rec
	} else if rec.Kind != record.TypeList {
		c.mu.Unlock()
		return 0
	}
	if atTail {
		rec.List = append(rec.List, vals...)
	} else {
		for _, v := range vals {
			rec.List = append([]string{v}, rec.List...)
		}
	}
	n := len(rec.List)
	c.mu.Unlock()

	// Notify strictly after the push is visible to subsequent pops, and
	// once per appended value: each RPUSH/LPUSH call wakes at most as
	// many waiters as values it contributed.
	for range vals {
		s.waiters.notifyOne(key)
	}
	return n
}

// LPop removes and returns the head of the list at key.
func (s *Store) LPop(key string) (string, bool) {
	c, ok := s.cells.Get(key)
	if !ok {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := s.liveRecord(c)
	if rec == nil || rec.Kind != record.TypeList || len(rec.List) == 0 {
		return "", false
	}
	v := rec.List[0]
	rec.List = rec.List[1:]
	return v, true
}

// LPopCount removes and returns up to count values from the head.
func (s *Store) LPopCount(key string, count int) []string {
	c, ok := s.cells.Get(key)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := s.liveRecord(c)
	if rec == nil || rec.Kind != record.TypeList || len(rec.List) == 0 || count <= 0 {
		return nil
	}
	if count > len(rec.List) {
		count = len(rec.List)
	}
	out := append([]string(nil), rec.List[:count]...)
	rec.List = rec.List[count:]
	return out
}

// LRange returns the inclusive slice [start, stop] of the list at key,
// after clamping negative and out-of-range indices the way LRANGE does.
func (s *Store) LRange(key string, start, stop int) []string {
	c, ok := s.cells.Get(key)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := s.liveRecord(c)
	if rec == nil || rec.Kind != record.TypeList {
		return nil
	}
	n := len(rec.List)
	if n == 0 {
		return nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop > n-1 {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	return append([]string(nil), rec.List[start:stop+1]...)
}

// LLen reports the length of the list at key, 0 on missing/non-list.
func (s *Store) LLen(key string) int {
	c, ok := s.cells.Get(key)
	if !ok {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := s.liveRecord(c)
	if rec == nil || rec.Kind != record.TypeList {
		return 0
	}
	return len(rec.List)
}

// BLPop implements the blocking pop algorithm: try an immediate pop,
// else register a waiter and retry before suspending, so that any push
// whose effects become visible after registration is guaranteed to be
// observed either directly or via the waiter firing. hasDeadline false
// means wait indefinitely (timeout 0).
func (s *Store) BLPop(key string, deadline time.Time, hasDeadline bool) (string, bool) {
	for {
		if v, ok := s.LPop(key); ok {
			return v, true
		}

		w := s.waiters.register(key)

		if v, ok := s.LPop(key); ok {
			if !s.waiters.abandon(key, w) {
				<-w.ch
			}
			return v, true
		}

		if !hasDeadline {
			<-w.ch
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.waiters.abandon(key, w)
			return "", false
		}

		timer := time.NewTimer(remaining)
		select {
		case <-w.ch:
			timer.Stop()
			continue
		case <-timer.C:
			if s.waiters.abandon(key, w) {
				return "", false
			}
			<-w.ch
			continue
		}
	}
}

// XAdd validates and appends an entry. idArg is the raw id token ("*",
// "<ms>-*", or "<ms>-<seq>"); fields holds the alternating field/value
// pairs in the order given to XADD.
func (s *Store) XAdd(key, idArg string, fields []FieldValue) (streamid.ID, error) {
	c := s.getOrCreateCell(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := s.liveRecord(c)
	var sv *streamValue
	if rec == nil {
		sv = &streamValue{}
		rec = record.NewStream(sv)
		c.rec = rec
	} else if rec.Kind != record.TypeStream {
		return streamid.ID{}, ErrWrongType
	} else {
		sv = rec.Stream.(*streamValue)
	}

	id, err := streamid.ParseAssigned(idArg, sv.lastID, nowMillis(s.now))
	if err != nil {
		return streamid.ID{}, err
	}
	if err := streamid.Validate(id, sv.lastID); err != nil {
		return streamid.ID{}, err
	}

	sv.root.create(pack(id)).entry = &streamEntry{ID: id, Fields: fields}
	sv.lastID = id
	return id, nil
}

// XRange resolves the "-"/"+" sentinels against key's stream and returns
// the entries with ids in [start, end], ascending.
func (s *Store) XRange(key string, start, end streamid.Bound) []streamEntry {
	c, ok := s.cells.Get(key)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := s.liveRecord(c)
	if rec == nil || rec.Kind != record.TypeStream {
		return nil
	}
	sv := rec.Stream.(*streamValue)

	lo, hi := start.ID, end.ID
	if start.IsMinSide {
		lo = streamid.ID{}
	}
	if end.IsMaxSide {
		hi = streamid.Max
	}
	return sv.root.entriesInRange(lo, hi)
}

// XRead returns the entries of the stream at key with an id strictly
// greater than after, ascending. It reports ErrWrongType if key holds a
// non-stream record, and returns nil for a missing key.
func (s *Store) XRead(key string, after streamid.ID) ([]streamEntry, error) {
	c, ok := s.cells.Get(key)
	if !ok {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := s.liveRecord(c)
	if rec == nil {
		return nil, nil
	}
	if rec.Kind != record.TypeStream {
		return nil, ErrWrongType
	}
	sv := rec.Stream.(*streamValue)
	return sv.root.entriesAfter(after), nil
}

// Keys returns a snapshot of every non-expired key currently present.
// Expired entries are dropped as encountered, since the store only ever
// expires a key lazily, on access.
func (s *Store) Keys() []string {
	out := make([]string, 0)
	s.cells.ForEach(func(key string, c *cell) bool {
		c.mu.Lock()
		live := s.liveRecord(c) != nil
		c.mu.Unlock()
		if live {
			out = append(out, key)
		}
		return true
	})
	return out
}
