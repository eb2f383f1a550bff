package app

import (
	"net/url"
)

// A ResolverSpec configures how the gateway derives one per-message
// value, either a fixed value or a js expression over the message.
type ResolverSpec struct {
	Value interface{} `yaml:"value,omitempty"`
	Expr  string      `yaml:"expr,omitempty"`
}

type GatewayConfig struct {
	Connect          string        `yaml:"connect"`
	ContentType      string        `yaml:"contenttype,omitempty"`
	HandshakeTimeout *int          `yaml:"handshaketimeout,omitempty"`
	Route            *ResolverSpec `yaml:"route"`
	Command          *ResolverSpec `yaml:"command,omitempty"`
	ElementType      *ResolverSpec `yaml:"elementtype,omitempty"`
	ResponseType     *ResolverSpec `yaml:"responsetype,omitempty"`

	url *url.URL `yaml:"-"`
}

type AppConfig struct {
	Gateway GatewayConfig `yaml:"gateway"`
}
