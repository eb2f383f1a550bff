package gateway

import (
	"context"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/superisaac/jgate/sock"
	"reflect"
)

// OutboundGateway turns inbound messages into outbound interactions on a
// shared duplex session. Per message it resolves a route, a payload shape,
// an interaction command and an expected response type, performs the one
// matching interaction and hands back an asynchronous Pending.
type OutboundGateway struct {
	connector *Connector
	config    *sock.Config
	registry  *Registry

	routeResolver        Resolver
	commandResolver      Resolver
	elementTypeResolver  Resolver
	responseTypeResolver Resolver
}

type Option func(*OutboundGateway)

// WithCommand fixes the interaction command for every message.
func WithCommand(cmd Command) Option {
	return func(gw *OutboundGateway) {
		gw.commandResolver = Constant(cmd)
	}
}

// WithCommandResolver computes the command per message.
func WithCommandResolver(r Resolver) Option {
	return func(gw *OutboundGateway) {
		gw.commandResolver = r
	}
}

// WithElementType fixes the payload sequence element type.
func WithElementType(td TypeDescriptor) Option {
	return func(gw *OutboundGateway) {
		gw.elementTypeResolver = Constant(td)
	}
}

// WithElementTypeResolver computes the payload sequence element type per
// message.
func WithElementTypeResolver(r Resolver) Option {
	return func(gw *OutboundGateway) {
		gw.elementTypeResolver = r
	}
}

// WithResponseType fixes the expected response type.
func WithResponseType(td TypeDescriptor) Option {
	return func(gw *OutboundGateway) {
		gw.responseTypeResolver = Constant(td)
	}
}

// WithResponseTypeResolver computes the expected response type per message.
func WithResponseTypeResolver(r Resolver) Option {
	return func(gw *OutboundGateway) {
		gw.responseTypeResolver = r
	}
}

// WithContentType sets the wire encoding label handed to the transport.
func WithContentType(contentType string) Option {
	return func(gw *OutboundGateway) {
		gw.config.ContentType = contentType
	}
}

// WithConnConfigurer installs a hook over the connection options.
func WithConnConfigurer(fn func(*sock.ConnOptions)) Option {
	return func(gw *OutboundGateway) {
		gw.config.ConnConfigurer = fn
	}
}

// WithCodecConfigurer installs a hook over the payload codec.
func WithCodecConfigurer(fn func(*sock.CodecOptions)) Option {
	return func(gw *OutboundGateway) {
		gw.config.CodecConfigurer = fn
	}
}

// WithRegistry replaces the type registry named response types resolve
// against.
func WithRegistry(reg *Registry) Option {
	return func(gw *OutboundGateway) {
		gw.registry = reg
	}
}

// New builds a gateway over a transport. The route resolver is mandatory,
// everything else defaults: request-response command, string element and
// response types, JSON content type.
func New(transport sock.Transport, route Resolver, opts ...Option) *OutboundGateway {
	if transport == nil {
		log.Panicf("transport is required")
	}
	if route == nil {
		log.Panicf("route resolver is required")
	}
	gw := &OutboundGateway{
		config:               &sock.Config{ContentType: sock.DefaultContentType},
		registry:             DefaultRegistry(),
		routeResolver:        route,
		commandResolver:      Constant(RequestResponse),
		elementTypeResolver:  Constant(TypeOf("")),
		responseTypeResolver: Constant(TypeOf("")),
	}
	for _, opt := range opts {
		opt(gw)
	}
	gw.connector = NewConnector(transport, gw.config)
	return gw
}

func (self *OutboundGateway) Log() *log.Entry {
	return log.WithFields(log.Fields{
		"rpc":   "gateway",
		"route": self.routeResolver.String(),
	})
}

// Start eagerly establishes the shared session under a lifecycle context.
// Optional, the first dispatched message establishes it otherwise.
func (self *OutboundGateway) Start(ctx context.Context) {
	self.connector.Initialize(ctx)
}

// Close disposes the shared session. Messages dispatched afterwards fail.
func (self *OutboundGateway) Close() error {
	return self.connector.Dispose()
}

// Connector exposes the shared session holder, mainly for lifecycle tests
// and embedding gateways into larger components.
func (self *OutboundGateway) Connector() *Connector {
	return self.connector
}

// Handle dispatches one message and never blocks. The Pending completes
// with nil for fire-and-forget, the decoded response value for
// request-response, a sock.Stream for request-stream-or-channel, or with
// the request's failure. The stream handle is available as soon as the
// request is on the wire, elements arrive lazily behind it.
func (self *OutboundGateway) Handle(ctx context.Context, msg *Message) *Pending {
	p := newPending()
	go func() {
		value, err := self.dispatch(ctx, msg)
		if err != nil {
			self.Log().Debugf("dispatch error %s", err)
			p.fail(err)
			return
		}
		p.complete(value)
	}()
	return p
}

func (self *OutboundGateway) dispatch(ctx context.Context, msg *Message) (interface{}, error) {
	session, err := self.connector.Acquire(ctx)
	if err != nil {
		return nil, transportErr("connect", err)
	}

	route, err := self.resolveRoute(ctx, msg)
	if err != nil {
		return nil, err
	}

	spec, err := self.attachPayload(ctx, session.Route(route), msg)
	if err != nil {
		return nil, err
	}

	command, err := self.resolveCommand(ctx, msg)
	if err != nil {
		return nil, err
	}

	// fire-and-forget is the one command that never resolves the
	// response type
	var rtype reflect.Type
	if command != FireAndForget {
		rtype, err = self.resolveType(ctx, msg, self.responseTypeResolver, "expectedResponseTypeExpression")
		if err != nil {
			return nil, err
		}
	}

	switch command {
	case FireAndForget:
		if err := spec.Send(ctx); err != nil {
			return nil, transportErr("send", err)
		}
		return nil, nil
	case RequestResponse:
		value, err := spec.RetrieveOne(ctx, rtype)
		if err != nil {
			return nil, transportErr("retrieve", err)
		}
		return value, nil
	case RequestStreamOrChannel:
		stream, err := spec.RetrieveStream(ctx, rtype)
		if err != nil {
			return nil, transportErr("subscribe", err)
		}
		return stream, nil
	}
	return nil, &UnsupportedCommandError{Command: command}
}

func (self *OutboundGateway) resolveRoute(ctx context.Context, msg *Message) (string, error) {
	expr := self.routeResolver.String()
	v, err := self.routeResolver.Resolve(ctx, msg)
	if err != nil {
		return "", errors.Wrapf(err, "routeExpression [%s]", expr)
	}
	if v == nil {
		return "", nullResolution("routeExpression", expr)
	}
	route, ok := v.(string)
	if !ok || route == "" {
		return "", badResolution("routeExpression", expr, v, "must evaluate to a non-empty route string")
	}
	return route, nil
}

func (self *OutboundGateway) attachPayload(ctx context.Context, spec sock.RequestSpec, msg *Message) (sock.RequestSpec, error) {
	if elems, ok := msg.Sequence(); ok {
		etype, err := self.resolveType(ctx, msg, self.elementTypeResolver, "elementTypeExpression")
		if err != nil {
			return nil, err
		}
		return spec.DataStream(elems, etype), nil
	}
	return spec.Data(msg.Payload), nil
}

func (self *OutboundGateway) resolveCommand(ctx context.Context, msg *Message) (Command, error) {
	expr := self.commandResolver.String()
	v, err := self.commandResolver.Resolve(ctx, msg)
	if err != nil {
		return "", errors.Wrapf(err, "commandExpression [%s]", expr)
	}
	switch cv := v.(type) {
	case nil:
		return "", nullResolution("commandExpression", expr)
	case Command:
		return cv, nil
	case string:
		cmd, perr := ParseCommand(cv)
		if perr != nil {
			return "", badResolution("commandExpression", expr, v, "must evaluate to an interaction command")
		}
		return cmd, nil
	}
	return "", badResolution("commandExpression", expr, v, "must evaluate to an interaction command")
}

// resolveType runs a type-position resolver and materializes the result. A
// type name, a reflect.Type, a TypeDescriptor and a composite spec map are
// the permitted shapes, anything else is a resolution failure naming the
// offending field and value.
func (self *OutboundGateway) resolveType(ctx context.Context, msg *Message, resolver Resolver, field string) (reflect.Type, error) {
	expr := resolver.String()
	v, err := resolver.Resolve(ctx, msg)
	if err != nil {
		return nil, errors.Wrapf(err, "%s [%s]", field, expr)
	}
	if v == nil {
		return nil, nullResolution(field, expr)
	}

	var td TypeDescriptor
	switch tv := v.(type) {
	case TypeDescriptor:
		td = tv
	case reflect.Type:
		td = GoType(tv)
	case string:
		td = NamedType(tv)
	case map[string]interface{}:
		ctd, cerr := CompositeType(tv)
		if cerr != nil {
			return nil, badResolution(field, expr, v, cerr.Error())
		}
		td = ctd
	default:
		return nil, badResolution(field, expr, v,
			"must evaluate to a type name, a reflect.Type or a composite type descriptor")
	}
	return td.Resolve(self.registry)
}
