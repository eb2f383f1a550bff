package sock

import (
	"context"
	"reflect"
)

// Transport establishes duplex sessions against a peer. The target address
// belongs to the transport value, the per-connection knobs travel in cfg.
type Transport interface {
	Connect(ctx context.Context, cfg *Config) (Session, error)
}

// Session is one established connection, shared by many requests.
type Session interface {
	// start building a request against a destination route
	Route(route string) RequestSpec

	// release the underlying connection
	Close() error
}

// RequestSpec accumulates one outbound interaction and performs it with
// exactly one of Send, RetrieveOne or RetrieveStream.
type RequestSpec interface {
	// attach a single payload value
	Data(v interface{}) RequestSpec

	// attach a payload sequence and its element type
	DataStream(elems <-chan interface{}, elem reflect.Type) RequestSpec

	// perform a send-only interaction
	Send(ctx context.Context) error

	// perform a request expecting exactly one response decoded as the
	// given type
	RetrieveOne(ctx context.Context, as reflect.Type) (interface{}, error)

	// perform a request expecting a response sequence whose elements
	// decode as the given type
	RetrieveStream(ctx context.Context, elem reflect.Type) (Stream, error)
}

// Stream is a non-restartable response sequence. Elements is closed when
// the sequence terminates, Err reports the terminal error afterwards, nil
// on a normal end.
type Stream interface {
	Elements() <-chan interface{}
	Err() error
}
