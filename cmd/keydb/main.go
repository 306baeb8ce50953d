package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/fenwick-labs/keydb/internal/command"
	"github.com/fenwick-labs/keydb/internal/server"
	"github.com/fenwick-labs/keydb/internal/store"
)

func main() {
	host := flag.String("host", "127.0.0.1", "listen address")
	port := flag.Int("port", 6379, "listen port")
	dir := flag.String("dir", "", "the directory in which the rdb file resides")
	dbfilename := flag.String("dbfilename", "", "the name of the RDB file")
	flag.Parse()

	dispatcher := command.New(store.New())
	dispatcher.Dir = *dir
	dispatcher.DBFilename = *dbfilename

	srv := server.New(net.JoinHostPort(*host, fmt.Sprint(*port)), dispatcher)
	if err := srv.Run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
