package app

import (
	"github.com/pkg/errors"
	"github.com/superisaac/jgate/expr"
	"github.com/superisaac/jgate/gateway"
	"github.com/superisaac/jgate/jsock"
	"github.com/superisaac/jgate/mq"
	"github.com/superisaac/jgate/sock"
	"net/url"
	"time"
)

// Build compiles an expression entry into a script resolver, a fixed
// value wraps into a constant.
func (self *ResolverSpec) Build() (gateway.Resolver, error) {
	if self.Expr != "" {
		return expr.Script(self.Expr)
	}
	return gateway.Constant(self.Value), nil
}

// transport parses Connect fresh so flag overrides after Load take
// effect.
func (self *GatewayConfig) transport() (sock.Transport, error) {
	u, err := url.Parse(self.Connect)
	if err != nil {
		return nil, errors.Wrap(err, "url.Parse")
	}
	switch u.Scheme {
	case "ws", "wss":
		return jsock.NewTransport(self.Connect), nil
	case "redis":
		return mq.NewTransport(self.Connect), nil
	}
	return nil, errors.Errorf("unsupported connect scheme %q", u.Scheme)
}

// Build assembles an outbound gateway from the loaded config.
func (self *GatewayConfig) Build() (*gateway.OutboundGateway, error) {
	if self.Route == nil {
		return nil, errors.New("route is not configured")
	}
	transport, err := self.transport()
	if err != nil {
		return nil, err
	}

	route, err := self.Route.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build route resolver")
	}

	opts := []gateway.Option{}
	if self.ContentType != "" {
		opts = append(opts, gateway.WithContentType(self.ContentType))
	}
	if self.HandshakeTimeout != nil {
		timeout := time.Second * time.Duration(*self.HandshakeTimeout)
		opts = append(opts, gateway.WithConnConfigurer(func(co *sock.ConnOptions) {
			co.HandshakeTimeout = timeout
		}))
	}
	if self.Command != nil {
		r, err := self.Command.Build()
		if err != nil {
			return nil, errors.Wrap(err, "build command resolver")
		}
		opts = append(opts, gateway.WithCommandResolver(r))
	}
	if self.ElementType != nil {
		r, err := self.ElementType.Build()
		if err != nil {
			return nil, errors.Wrap(err, "build elementtype resolver")
		}
		opts = append(opts, gateway.WithElementTypeResolver(r))
	}
	if self.ResponseType != nil {
		r, err := self.ResponseType.Build()
		if err != nil {
			return nil, errors.Wrap(err, "build responsetype resolver")
		}
		opts = append(opts, gateway.WithResponseTypeResolver(r))
	}
	return gateway.New(transport, route, opts...), nil
}
