package gateway

import (
	"context"
)

// Pending is the asynchronous outcome of one dispatched message. It
// completes exactly once, with a value or an error.
type Pending struct {
	done  chan struct{}
	value interface{}
	err   error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (self *Pending) complete(value interface{}) {
	self.value = value
	close(self.done)
}

func (self *Pending) fail(err error) {
	self.err = err
	close(self.done)
}

// Done is closed once the interaction finished either way.
func (self *Pending) Done() <-chan struct{} {
	return self.done
}

// Wait blocks until completion or context expiry.
func (self *Pending) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-self.done:
		return self.value, self.err
	}
}

// Value is the completion value, valid after Done is closed.
func (self *Pending) Value() interface{} {
	return self.value
}

// Err is the completion error, valid after Done is closed.
func (self *Pending) Err() error {
	return self.err
}
