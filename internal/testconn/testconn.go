// Package testconn provides an in-memory transport connection for tests.
package testconn

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("testconn: closed")

// Timeout bounds every wait in this package.
const Timeout = 2 * time.Second

// Conn records every frame written to it.
type Conn struct {
	id     string
	frames chan string

	mu     sync.Mutex
	closed bool
	reason string
}

// New returns an open Conn.
func New(id string) *Conn {
	return &Conn{id: id, frames: make(chan string, 1024)}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Write records frame.
func (c *Conn) Write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.frames <- string(frame):
		return nil
	default:
		return errors.New("testconn: buffer full")
	}
}

// Close marks the connection closed.
func (c *Conn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.reason = reason
	}
}

// Closed reports whether Close was called, and with which reason.
func (c *Conn) Closed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.reason
}

// Frames exposes the written frames, for readers outside the test
// goroutine.
func (c *Conn) Frames() <-chan string { return c.frames }

// Next waits for the next written frame.
func (c *Conn) Next(t testing.TB) string {
	t.Helper()
	select {
	case f := <-c.frames:
		return f
	case <-time.After(Timeout):
		t.Fatalf("%s: timed out waiting for a frame", c.id)
		return ""
	}
}

// Expect fails unless the next frame equals want.
func (c *Conn) Expect(t testing.TB, want string) {
	t.Helper()
	if got := c.Next(t); got != want {
		t.Errorf("%s: frame = %s, want %s", c.id, got, want)
	}
}

// Quiet fails if a frame arrives within d.
func (c *Conn) Quiet(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case f := <-c.frames:
		t.Errorf("%s: unexpected frame %s", c.id, f)
	case <-time.After(d):
	}
}
