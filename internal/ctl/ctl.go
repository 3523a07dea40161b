// Package ctl exposes a running listener over a unix socket so a second
// earshot invocation can stop it or query its stats.
package ctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
)

// DefaultSocketPath is where the listener serves its control socket.
const DefaultSocketPath = "/tmp/earshot.sock"

type Request struct {
	Cmd string `json:"cmd"`
}

type Response struct {
	OK         bool    `json:"ok"`
	Error      string  `json:"error,omitempty"`
	Detections int     `json:"detections,omitempty"`
	UptimeSec  float64 `json:"uptime_sec,omitempty"`
}

// Handler processes one control request.
type Handler func(Request) Response

type Server struct {
	ln net.Listener
}

// Listen binds the control socket at path. A stale socket file from a
// previous run is removed first. The returned server does not accept
// connections until Serve is called.
func Listen(path string) (*Server, error) {
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on control socket: %w", err)
	}

	return &Server{ln: ln}, nil
}

// Serve accepts control connections until the server is closed. It
// returns nil once Close has been called.
func (s *Server) Serve(handler Handler) error {
	for {
		conn, err := s.ln.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("accept control connection: %w", err)
		}
		go handleConn(conn, handler)
	}
}

func handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		json.NewEncoder(conn).Encode(Response{Error: "bad request"})
		return
	}

	resp := handler(req)
	json.NewEncoder(conn).Encode(resp)
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Send delivers one command to a listener's control socket and returns
// its response.
func Send(path, cmd string) (*Response, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(Request{Cmd: cmd}); err != nil {
		return nil, err
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, err
	}

	return &resp, nil
}
