package gateway

import (
	"context"
	"fmt"
)

// Command selects the interaction shape of one dispatched message.
type Command string

const (
	// send only, no value carried back
	FireAndForget Command = "fire-and-forget"

	// exactly one typed response value
	RequestResponse Command = "request-response"

	// a lazy response sequence; whether the interaction is a stream or a
	// channel is decided by the request payload shape, not here
	RequestStreamOrChannel Command = "request-stream-or-channel"
)

// ParseCommand maps a command name to its Command, rejecting unknown names.
func ParseCommand(s string) (Command, error) {
	switch Command(s) {
	case FireAndForget, RequestResponse, RequestStreamOrChannel:
		return Command(s), nil
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// Message is one inbound unit of work. A Payload of chan interface{} or
// <-chan interface{} is a payload sequence, anything else, slices included,
// is a single value.
type Message struct {
	Payload interface{}
	Headers map[string]interface{}
}

func NewMessage(payload interface{}) *Message {
	return &Message{Payload: payload}
}

// WithHeader sets a header and returns the message for chaining.
func (self *Message) WithHeader(key string, value interface{}) *Message {
	if self.Headers == nil {
		self.Headers = make(map[string]interface{})
	}
	self.Headers[key] = value
	return self
}

func (self *Message) Header(key string) (interface{}, bool) {
	v, ok := self.Headers[key]
	return v, ok
}

// Sequence reports whether the payload is a sequence and returns it as a
// receive channel if so.
func (self *Message) Sequence() (<-chan interface{}, bool) {
	switch ch := self.Payload.(type) {
	case chan interface{}:
		return ch, true
	case <-chan interface{}:
		return ch, true
	}
	return nil, false
}

// Resolver computes one per-request value from an inbound message. String
// returns the configured expression text, echoed in resolution errors.
type Resolver interface {
	Resolve(ctx context.Context, msg *Message) (interface{}, error)
	String() string
}

type constantResolver struct {
	value interface{}
}

// Constant is a resolver that yields the same value for every message.
func Constant(value interface{}) Resolver {
	return constantResolver{value: value}
}

func (self constantResolver) Resolve(ctx context.Context, msg *Message) (interface{}, error) {
	return self.value, nil
}

func (self constantResolver) String() string {
	return fmt.Sprintf("constant(%v)", self.value)
}
