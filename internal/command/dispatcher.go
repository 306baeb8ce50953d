// Package command implements the dispatcher: validates each decoded
// request against its command's arity and option syntax, invokes the
// keyspace store, and maps the result to a reply value. It owns no I/O;
// the connection driver in internal/server calls Dispatch once per
// decoded request and writes the returned resp.Value back to the wire.
package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/fenwick-labs/keydb/internal/resp"
	"github.com/fenwick-labs/keydb/internal/store"
	"github.com/fenwick-labs/keydb/internal/streamid"
)

// Dispatcher binds a Store to command handling. It holds no per-connection
// state; one Dispatcher is shared by every session.
//
// Dir and DBFilename back CONFIG GET only: they are parsed from the
// command line at startup, but since RDB loading is out of scope here,
// nothing ever reads an actual file from them.
type Dispatcher struct {
	Store      *store.Store
	Now        func() time.Time
	Dir        string
	DBFilename string
}

func New(s *store.Store) *Dispatcher {
	return &Dispatcher{Store: s, Now: time.Now}
}

// Dispatch executes one decoded request and returns its reply.
func (d *Dispatcher) Dispatch(args []string) resp.Value {
	if len(args) == 0 {
		return resp.ErrorString("unknown command")
	}

	switch strings.ToLower(args[0]) {
	case "ping":
		return d.doPing(args)
	case "echo":
		return d.doEcho(args)
	case "set":
		return d.doSet(args)
	case "get":
		return d.doGet(args)
	case "rpush":
		return d.doPush(args, true)
	case "lpush":
		return d.doPush(args, false)
	case "lpop":
		return d.doLpop(args)
	case "blpop":
		return d.doBlpop(args)
	case "lrange":
		return d.doLrange(args)
	case "llen":
		return d.doLlen(args)
	case "type":
		return d.doType(args)
	case "xadd":
		return d.doXadd(args)
	case "xrange":
		return d.doXrange(args)
	case "xread":
		return d.doXread(args)
	case "keys":
		return d.doKeys(args)
	case "config":
		return d.doConfig(args)
	default:
		return resp.ErrorString("unknown command")
	}
}

func arityError(name string) resp.Value {
	return resp.Errorf("wrong number of arguments for '%s' command", strings.ToLower(name))
}

var errSyntax = resp.ErrorString("syntax error")

func parseInt(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func (d *Dispatcher) doPing(args []string) resp.Value {
	if len(args) != 1 {
		return arityError(args[0])
	}
	return resp.SimpleString("PONG")
}

func (d *Dispatcher) doEcho(args []string) resp.Value {
	if len(args) != 2 {
		return arityError(args[0])
	}
	return resp.Bulk(args[1])
}

// doSet implements SET key val [EX secs|PX ms].
func (d *Dispatcher) doSet(args []string) resp.Value {
	if len(args) != 3 && len(args) != 5 {
		return arityError(args[0])
	}

	key, val := args[1], args[2]
	var expireAt time.Time
	var hasTTL bool

	if len(args) == 5 {
		flag := strings.ToUpper(args[3])
		n, ok := parseInt(args[4])
		if !ok {
			return resp.ErrorString("value is not an integer or out of range")
		}
		switch flag {
		case "EX":
			expireAt = d.Now().Add(time.Duration(n) * time.Second)
		case "PX":
			expireAt = d.Now().Add(time.Duration(n) * time.Millisecond)
		default:
			return errSyntax
		}
		hasTTL = true
	}

	d.Store.Set(key, val, expireAt, hasTTL)
	return resp.SimpleString("OK")
}

func (d *Dispatcher) doGet(args []string) resp.Value {
	if len(args) != 2 {
		return arityError(args[0])
	}
	v, ok := d.Store.Get(args[1])
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(v)
}

func (d *Dispatcher) doPush(args []string, atTail bool) resp.Value {
	if len(args) < 3 {
		return arityError(args[0])
	}
	var n int
	if atTail {
		n = d.Store.RPush(args[1], args[2:]...)
	} else {
		n = d.Store.LPush(args[1], args[2:]...)
	}
	return resp.Integer(int64(n))
}

// doLpop implements LPOP key [count].
func (d *Dispatcher) doLpop(args []string) resp.Value {
	switch len(args) {
	case 2:
		v, ok := d.Store.LPop(args[1])
		if !ok {
			return resp.NullBulk()
		}
		return resp.Bulk(v)
	case 3:
		count, ok := parseInt(args[2])
		if !ok {
			return resp.ErrorString("value is not an integer or out of range")
		}
		if count <= 1 {
			if count == 1 {
				if v, ok := d.Store.LPop(args[1]); ok {
					return resp.Bulk(v)
				}
			}
			return resp.NullBulk()
		}
		vals := d.Store.LPopCount(args[1], count)
		return resp.BulkStrings(vals)
	default:
		return arityError(args[0])
	}
}

// doBlpop implements BLPOP key timeout.
func (d *Dispatcher) doBlpop(args []string) resp.Value {
	if len(args) != 3 {
		return arityError(args[0])
	}
	seconds, err := strconv.ParseFloat(args[2], 64)
	if err != nil || seconds < 0 {
		return resp.ErrorString("timeout is not a float or out of range")
	}

	var deadline time.Time
	hasDeadline := seconds > 0
	if hasDeadline {
		deadline = d.Now().Add(time.Duration(seconds * float64(time.Second)))
	}

	v, ok := d.Store.BLPop(args[1], deadline, hasDeadline)
	if !ok {
		return resp.NullArray()
	}
	return resp.Array(resp.Bulk(args[1]), resp.Bulk(v))
}

func (d *Dispatcher) doLrange(args []string) resp.Value {
	if len(args) != 4 {
		return arityError(args[0])
	}
	start, ok1 := parseInt(args[2])
	stop, ok2 := parseInt(args[3])
	if !ok1 || !ok2 {
		return resp.ErrorString("value is not an integer or out of range")
	}
	return resp.BulkStrings(d.Store.LRange(args[1], start, stop))
}

func (d *Dispatcher) doLlen(args []string) resp.Value {
	if len(args) != 2 {
		return arityError(args[0])
	}
	return resp.Integer(int64(d.Store.LLen(args[1])))
}

func (d *Dispatcher) doType(args []string) resp.Value {
	if len(args) != 2 {
		return arityError(args[0])
	}
	return resp.SimpleString(d.Store.TypeOf(args[1]))
}

// doXadd implements XADD key id f1 v1 [f2 v2 ...]. args[2] is always the
// id argument and args[3:] are the alternating field/value pairs, never
// the other way around.
func (d *Dispatcher) doXadd(args []string) resp.Value {
	if len(args) < 3 {
		return arityError(args[0])
	}
	rest := args[3:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return errSyntax
	}

	fields := make([]store.FieldValue, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		fields[i/2] = store.FieldValue{Field: rest[i], Value: rest[i+1]}
	}

	id, err := d.Store.XAdd(args[1], args[2], fields)
	if err != nil {
		return streamError(err)
	}
	return resp.Bulk(id.String())
}

func streamError(err error) resp.Value {
	switch err {
	case streamid.ErrMustBeGreaterThanZero:
		return resp.ErrorString("The ID specified in XADD must be greater than 0-0")
	case streamid.ErrNotIncreasing:
		return resp.ErrorString("The ID specified in XADD is equal or smaller than the target stream top item")
	case store.ErrWrongType:
		return resp.ErrorString("WRONGTYPE Operation against a key holding the wrong kind of value")
	default:
		return resp.ErrorString(err.Error())
	}
}

// doXrange implements XRANGE key start end.
func (d *Dispatcher) doXrange(args []string) resp.Value {
	if len(args) != 4 {
		return arityError(args[0])
	}
	start, err := streamid.ParseBound(args[2])
	if err != nil {
		return resp.ErrorString("Invalid stream ID specified as stream command argument")
	}
	end, err := streamid.ParseBound(args[3])
	if err != nil {
		return resp.ErrorString("Invalid stream ID specified as stream command argument")
	}

	entries := d.Store.XRange(args[1], start, end)
	items := make([]resp.Value, len(entries))
	for i, e := range entries {
		flat := make([]string, 0, len(e.Fields)*2)
		for _, fv := range e.Fields {
			flat = append(flat, fv.Field, fv.Value)
		}
		items[i] = resp.Array(resp.Bulk(e.ID.String()), resp.BulkStrings(flat))
	}
	return resp.ArrayOf(items)
}

// doXread implements XREAD key id: every entry of the stream at key
// strictly newer than id, ascending.
func (d *Dispatcher) doXread(args []string) resp.Value {
	if len(args) != 3 {
		return arityError(args[0])
	}
	bound, err := streamid.ParseBound(args[2])
	if err != nil {
		return resp.ErrorString("Invalid stream ID specified as stream command argument")
	}
	after := bound.ID
	if bound.IsMaxSide {
		after = streamid.Max
	}

	entries, err := d.Store.XRead(args[1], after)
	if err != nil {
		return streamError(err)
	}
	items := make([]resp.Value, len(entries))
	for i, e := range entries {
		flat := make([]string, 0, len(e.Fields)*2)
		for _, fv := range e.Fields {
			flat = append(flat, fv.Field, fv.Value)
		}
		items[i] = resp.Array(resp.Bulk(e.ID.String()), resp.BulkStrings(flat))
	}
	return resp.ArrayOf(items)
}

func (d *Dispatcher) doKeys(args []string) resp.Value {
	if len(args) != 2 {
		return arityError(args[0])
	}
	return resp.BulkStrings(d.Store.Keys())
}

// doConfig implements CONFIG GET dir|dbfilename, inert introspection over
// the flags the same names are bound to at startup (see cmd/keydb).
func (d *Dispatcher) doConfig(args []string) resp.Value {
	if len(args) != 3 || strings.ToLower(args[1]) != "get" {
		return errSyntax
	}
	switch strings.ToLower(args[2]) {
	case "dir":
		return resp.BulkStrings([]string{"dir", d.Dir})
	case "dbfilename":
		return resp.BulkStrings([]string{"dbfilename", d.DBFilename})
	default:
		return resp.ArrayOf(nil)
	}
}
