// Package venuetest provides a fake venue websocket server for tests.
package venuetest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrNoConnection is returned by Send when no client is connected.
var ErrNoConnection = errors.New("venuetest: no connection")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Request is a subscribe request received by the server.
type Request struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Depth   int    `json:"depth"`
}

// Server acks subscriptions and lets the test push frames to the current
// connection.
type Server struct {
	srv *httptest.Server

	mu          sync.Mutex
	conn        *websocket.Conn
	connects    int
	requests    []Request
	rejectChans map[string]string
	subscribed  chan Request
}

// NewServer starts a fake venue.
func NewServer() *Server {
	s := &Server{
		rejectChans: make(map[string]string),
		subscribed:  make(chan Request, 64),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the ws:// endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Reject makes subscribe requests for channel fail with msg.
func (s *Server) Reject(channel, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectChans[channel] = msg
}

// Subscribed delivers every acked subscribe request.
func (s *Server) Subscribed() <-chan Request {
	return s.subscribed
}

// Connects returns how many connections were accepted.
func (s *Server) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Requests returns all subscribe requests seen.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Send writes a raw frame to the current connection.
func (s *Server) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNoConnection
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// Drop closes the current connection without a close frame.
func (s *Server) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Close shuts the server down.
func (s *Server) Close() {
	s.Drop()
	s.srv.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = c
	s.connects++
	s.mu.Unlock()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(msg, &req); err != nil || req.Op != "subscribe" {
			continue
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		reject, rejected := s.rejectChans[req.Channel]
		var reply any
		if rejected {
			reply = map[string]string{"op": "error", "channel": req.Channel, "msg": reject}
		} else {
			reply = map[string]string{"op": "subscribed", "channel": req.Channel}
		}
		werr := c.WriteJSON(reply)
		s.mu.Unlock()

		if werr != nil {
			return
		}
		if !rejected {
			select {
			case s.subscribed <- req:
			default:
			}
		}
	}
}
