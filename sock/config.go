package sock

import (
	"encoding/json"
	"github.com/pkg/errors"
	"net/http"
	"reflect"
	"time"
)

const (
	DefaultContentType      = "application/json"
	DefaultHandshakeTimeout = 10 * time.Second
)

// Config carries the connection-time settings a gateway hands to its
// transport. Configurer hooks mutate the option structs after defaults are
// filled in, the same way per-deployment tweaks are applied to a client
// factory.
type Config struct {
	// ContentType labels the payload encoding on the wire
	ContentType string

	ConnConfigurer  func(*ConnOptions)
	CodecConfigurer func(*CodecOptions)
}

// ConnOptions are the low-level connection knobs.
type ConnOptions struct {
	HandshakeTimeout time.Duration
	RequestHeader    http.Header

	// ReadLimit caps a single inbound frame, 0 means transport default
	ReadLimit int64
}

// CodecOptions converts payload values to and from their wire shape.
type CodecOptions struct {
	// Encode turns an application value into a wire value
	Encode func(v interface{}) (interface{}, error)

	// Decode fills into, a non-nil pointer, from a wire value
	Decode func(raw interface{}, into interface{}) error
}

// ConnOptions builds the effective connection options, defaults first, then
// the configurer hook.
func (self *Config) ConnOptions() *ConnOptions {
	opts := &ConnOptions{
		HandshakeTimeout: DefaultHandshakeTimeout,
		RequestHeader:    http.Header{},
	}
	opts.RequestHeader.Set("X-Sock-Content-Type", self.contentType())
	if self.ConnConfigurer != nil {
		self.ConnConfigurer(opts)
	}
	return opts
}

// CodecOptions builds the effective codec, JSON round-tripping by default,
// then the configurer hook.
func (self *Config) CodecOptions() *CodecOptions {
	opts := &CodecOptions{
		Encode: func(v interface{}) (interface{}, error) {
			return v, nil
		},
		Decode: JSONDecode,
	}
	if self.CodecConfigurer != nil {
		self.CodecConfigurer(opts)
	}
	return opts
}

func (self *Config) contentType() string {
	if self.ContentType == "" {
		return DefaultContentType
	}
	return self.ContentType
}

// JSONDecode converts a decoded wire value into a typed one by a JSON
// round trip, so json.Number, map and slice shapes all coerce uniformly.
func JSONDecode(raw interface{}, into interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "json.Marshal")
	}
	if err := json.Unmarshal(data, into); err != nil {
		return errors.Wrap(err, "json.Unmarshal")
	}
	return nil
}

// DecodeAs decodes a wire value as the given type. A nil or empty-interface
// type passes the value through untouched.
func (self *CodecOptions) DecodeAs(raw interface{}, as reflect.Type) (interface{}, error) {
	if as == nil || (as.Kind() == reflect.Interface && as.NumMethod() == 0) {
		return raw, nil
	}
	ptr := reflect.New(as)
	if err := self.Decode(raw, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
