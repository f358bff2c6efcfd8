package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrBadRequest wraps request messages that are not valid JSON.
var ErrBadRequest = errors.New("bad request")

// Request asks for one solve. An empty Sample means the server's sample.
type Request struct {
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Seed     int64    `json:"seed"`
	Attempts int      `json:"attempts,omitempty"`
	Sample   []string `json:"sample,omitempty"`
}

// StepFrame reports one collapse.
type StepFrame struct {
	Type      string `json:"type"`
	Iteration int    `json:"iteration"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Tile      string `json:"tile"`
	Remaining int    `json:"remaining"`
}

// DoneFrame carries the finished grid. ID is set when the generation was
// stored.
type DoneFrame struct {
	Type       string   `json:"type"`
	Rows       []string `json:"rows"`
	Seed       int64    `json:"seed"`
	Attempt    int      `json:"attempt"`
	Iterations int      `json:"iterations"`
	ID         string   `json:"id,omitempty"`
}

// ErrorFrame ends a solve. X and Y locate the contradiction when there was
// one.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	X     *int   `json:"x,omitempty"`
	Y     *int   `json:"y,omitempty"`
}

// Frame types.
const (
	FrameStep  = "step"
	FrameDone  = "done"
	FrameError = "error"
)

// WebSocketClient exchanges JSON messages over a WebSocket connection.
type WebSocketClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla allows one concurrent writer
}

// NewWebSocketClient creates a new WebSocketClient from a WebSocket connection.
func NewWebSocketClient(conn *websocket.Conn) *WebSocketClient {
	return &WebSocketClient{conn: conn}
}

// ReadRequest blocks until the next non-blank message and decodes it.
// Decoding failures are wrapped in ErrBadRequest and leave the connection
// usable.
func (c *WebSocketClient) ReadRequest() (*Request, error) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		message = bytes.TrimSpace(message)
		if len(message) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return &req, nil
	}
}

// WriteFrame sends one frame as a JSON text message.
func (c *WebSocketClient) WriteFrame(frame any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

// Close closes the WebSocket connection.
func (c *WebSocketClient) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote address as a string.
func (c *WebSocketClient) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
