// Package server is the connection driver: the thin, boundary component
// that turns a TCP listener into a stream of decoded requests fed to a
// command.Dispatcher, and writes its replies back. It owns no keyspace
// logic of its own; it exists only to run the system over a socket.
package server

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fenwick-labs/keydb/internal/command"
)

// Server owns the listening socket and the set of in-flight connections.
type Server struct {
	Addr       string
	Dispatcher *command.Dispatcher

	listener net.Listener
	quit     chan os.Signal
	wg       sync.WaitGroup
}

func New(addr string, d *command.Dispatcher) *Server {
	return &Server{
		Addr:       addr,
		Dispatcher: d,
		quit:       make(chan os.Signal, 1),
	}
}

// Run binds the listener and blocks, serving connections until SIGINT or
// SIGTERM, then waits for in-flight connections to finish.
func (s *Server) Run() error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("keydb: failed to bind to %s: %w", s.Addr, err)
	}
	defer listener.Close()
	s.listener = listener

	fmt.Println("keydb listening on", s.Addr)

	go s.acceptLoop()
	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	<-s.quit

	fmt.Println("shutting down...")
	listener.Close()
	s.wg.Wait()
	fmt.Println("shutdown complete")
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Run's shutdown path closes the listener to unblock us here.
			log.Println("accept error:", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess := newSession(conn, s.Dispatcher)
			sess.handle()
		}()
	}
}
