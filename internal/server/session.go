package server

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"os"

	"github.com/fenwick-labs/keydb/internal/command"
	"github.com/fenwick-labs/keydb/internal/resp"
)

// session drives one connection: read a frame, dispatch it, write the
// reply, repeat. Commands on one connection are processed strictly
// sequentially: the next read doesn't happen until the previous reply
// has been written, so replies on a connection always arrive in the
// order their commands were sent.
type session struct {
	conn net.Conn
	d    *command.Dispatcher
	log  *log.Logger
}

func newSession(conn net.Conn, d *command.Dispatcher) *session {
	return &session{
		conn: conn,
		d:    d,
		log:  log.New(os.Stderr, conn.RemoteAddr().String()+" ", log.LstdFlags),
	}
}

func (s *session) handle() {
	defer s.conn.Close()

	reader := bufio.NewReader(s.conn)
	enc := resp.Encoder{}
	for {
		args, err := resp.DecodeRequest(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			// A decode failure leaves the connection incoherent: no partial
			// reply, just tear the connection down.
			s.log.Println("decode error:", err)
			return
		}

		reply := s.d.Dispatch(args)

		enc.Reset()
		enc.WriteValue(reply)
		if _, err := s.conn.Write(enc.Buf); err != nil {
			s.log.Println("write error:", err)
			return
		}
	}
}
