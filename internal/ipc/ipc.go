package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
)

const DefaultSocketPath = "/tmp/voxchat.sock"

type ControlMessage struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

// StartServer listens on a unix socket and hands every decoded message to
// handler. The listener closes when ctx is done.
func StartServer(ctx context.Context, path string, handler func(ControlMessage)) error {
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
		os.Remove(path)
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Warn("Control accept failed", "err", err)
				continue
			}
			go handleConn(conn, handler)
		}
	}()

	return nil
}

func handleConn(conn net.Conn, handler func(ControlMessage)) {
	defer conn.Close()

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		return
	}
	handler(msg)
}

func SendCommand(path string, msg ControlMessage) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()

	return json.NewEncoder(conn).Encode(msg)
}
