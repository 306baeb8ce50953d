package server

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-labs/keydb/internal/command"
	"github.com/fenwick-labs/keydb/internal/store"
)

func TestSessionRoundTrip(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()

	d := command.New(store.New())
	sess := newSession(srv, d)
	go sess.handle()

	_, err := client.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(client)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "+PONG\r\n", line)
}

func TestSessionClosesOnMalformedFrame(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()

	d := command.New(store.New())
	sess := newSession(srv, d)
	done := make(chan struct{})
	go func() {
		sess.handle()
		close(done)
	}()

	_, err := client.Write([]byte("?garbage\r\n"))
	require.NoError(t, err)
	<-done

	_, err = client.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	assert.Error(t, err)
}
