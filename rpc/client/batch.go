package client

import (
	"sync"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/transport/base"
	"golang.org/x/sync/errgroup"
)

// batch pipelines stream lines: one goroutine sends lines as fast as the
// producer yields them while another one reads the answers. Every line stays
// pending until its answer arrived, so after a reconnect the unanswered lines
// are sent again before the producer is resumed. This keeps the number of
// results in line with the number of produced lines even if the producer can
// only be consumed once.
type batch struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []string // sent (or about to be sent) and unanswered, oldest first
	results []string
	sent    int // lines taken from the producer
	done    bool
}

func newBatch() *batch {
	b := &batch{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// process runs one attempt on conn. On failure the connection is closed and
// process may be called again with a new connection.
func (b *batch) process(conn *base.Conn, next func() (string, bool)) ([]string, error) {
	b.mu.Lock()
	b.done = false
	b.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		err := b.send(conn, next)
		if err != nil {
			// unblocks the receiver
			conn.Close()
		}
		return err
	})
	g.Go(func() error {
		err := b.recv(conn)
		if err != nil {
			// unblocks the sender
			conn.Close()
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(b.results) != b.sent {
		return nil, common.NewProtocolError("expected %d results, got %d", b.sent, len(b.results))
	}
	return b.results, nil
}

func (b *batch) send(conn *base.Conn, next func() (string, bool)) (err error) {
	defer func() {
		b.mu.Lock()
		b.done = true
		b.cond.Signal()
		b.mu.Unlock()
	}()

	// In flight lines of a previous attempt go first
	b.mu.Lock()
	resend := append([]string(nil), b.pending...)
	b.mu.Unlock()

	for _, line := range resend {
		if err := conn.SendString(line); err != nil {
			return err
		}
	}

	for {
		line, ok := next()
		if !ok {
			return nil
		}

		b.mu.Lock()
		b.pending = append(b.pending, line)
		b.sent++
		b.cond.Signal()
		b.mu.Unlock()

		if err := conn.SendString(line); err != nil {
			return err
		}
	}
}

func (b *batch) recv(conn *base.Conn) error {
	for {
		b.mu.Lock()
		for len(b.pending) == 0 && !b.done {
			b.cond.Wait()
		}
		if len(b.pending) == 0 {
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()

		r, err := conn.RecvString()
		if err != nil {
			return err
		}

		b.mu.Lock()
		b.results = append(b.results, r)
		b.pending = b.pending[1:]
		b.mu.Unlock()
	}
}

// streamBatch sends all lines of next in mode and returns one answer per line
func (c *Client) streamBatch(mode Mode, next func() (string, bool)) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := newBatch()
	var results []string
	err := c.withConnection(func(conn *base.Conn) error {
		if err := c.setMode(conn, mode); err != nil {
			return err
		}
		var err error
		results, err = b.process(conn, next)
		return err
	})
	return results, err
}
