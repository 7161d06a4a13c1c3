// Package websocket serves tail sessions over WebSocket connections.
//
// Each connection carries exactly one tail session. Events are sent as JSON
// text frames:
//
//	{"event":"update","data":"appended text"}
//	{"event":"deleted","data":{"message":"file was deleted","type":"FILE_DELETED"}}
//
// After a terminal event the server sends a normal close frame.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tripwire/logviewer/internal/tail"
)

// Frame is the JSON envelope of one tail event. Data is the file text for
// init, update and reload, and a tail.ErrorPayload for deleted and error.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NewFrame converts ev to its wire form.
func NewFrame(ev tail.Event) Frame {
	if p := ev.Payload(); p != nil {
		return Frame{Event: ev.Name, Data: p}
	}
	return Frame{Event: ev.Name, Data: string(ev.Data)}
}

// errClosed is returned by Emit once the connection has failed.
var errClosed = errors.New("websocket: connection closed")

// Client is the tail.Sink of one connection. Emit never blocks: when the
// send buffer is full it reports tail.ErrSinkBusy and the session retries
// on its next cycle.
type Client struct {
	id   string
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	// Busy counts events deferred because the buffer was full.
	Busy atomic.Int64
}

func newClient(id string, bufSize int) *Client {
	return &Client{
		id:   id,
		send: make(chan []byte, bufSize),
		done: make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string { return c.id }

// Emit queues ev for the write pump.
func (c *Client) Emit(ctx context.Context, ev tail.Event) error {
	select {
	case <-c.done:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	raw, err := json.Marshal(NewFrame(ev))
	if err != nil {
		return err
	}
	select {
	case c.send <- raw:
		return nil
	default:
		c.Busy.Add(1)
		return tail.ErrSinkBusy
	}
}

// fail marks the connection as unusable; later Emit calls return errClosed.
func (c *Client) fail() {
	c.closeOnce.Do(func() { close(c.done) })
}
