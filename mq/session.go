package mq

import (
	"context"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/superisaac/jgate/sock"
	"github.com/superisaac/jsoff"
	"net/url"
	"reflect"
	"sync"
)

var ErrClosed = errors.New("mq session closed")

// Transport adapts the message queue to the sock contracts. A route
// names a queue section, sends append notify items to it and
// retrievals follow it. Replies are whatever lands on the section
// after the request item, so the section is a topic, not a
// point-to-point channel.
type Transport struct {
	urlstr string
}

func NewTransport(urlstr string) *Transport {
	return &Transport{urlstr: urlstr}
}

func (self *Transport) Connect(ctx context.Context, cfg *sock.Config) (sock.Session, error) {
	if cfg == nil {
		cfg = &sock.Config{}
	}
	u, err := url.Parse(self.urlstr)
	if err != nil {
		return nil, errors.Wrap(err, "url.Parse")
	}
	if u.Scheme != "redis" {
		return nil, errors.Errorf("unsupported mq scheme %q", u.Scheme)
	}
	client := NewMQClient(u)
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "mq ping")
	}
	session := &Session{
		client: client,
		codec:  cfg.CodecOptions(),
		closed: make(chan struct{}),
	}
	return session, nil
}

type Session struct {
	client MQClient
	codec  *sock.CodecOptions

	closeOnce sync.Once
	closed    chan struct{}
}

func (self *Session) Log() *log.Entry {
	return log.WithFields(log.Fields{"mq": "redis"})
}

func (self *Session) Route(route string) sock.RequestSpec {
	return &requestSpec{session: self, section: route}
}

func (self *Session) Close() error {
	var err error
	self.closeOnce.Do(func() {
		close(self.closed)
		err = self.client.Close()
	})
	return err
}

type requestSpec struct {
	session   *Session
	section   string
	single    interface{}
	elems     <-chan interface{}
	streaming bool
}

func (self *requestSpec) Data(v interface{}) sock.RequestSpec {
	self.single = v
	self.streaming = false
	return self
}

func (self *requestSpec) DataStream(elems <-chan interface{}, elem reflect.Type) sock.RequestSpec {
	self.elems = elems
	self.streaming = true
	return self
}

func (self *requestSpec) Send(ctx context.Context) error {
	if !self.streaming {
		_, err := self.addItem(ctx, self.single)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-self.session.closed:
			return ErrClosed
		case elem, ok := <-self.elems:
			if !ok {
				return nil
			}
			if _, err := self.addItem(ctx, elem); err != nil {
				return err
			}
		}
	}
}

// RetrieveOne takes the first item appended to the section after the
// request item. A nil payload publishes nothing and just takes the
// next item.
func (self *requestSpec) RetrieveOne(ctx context.Context, as reflect.Type) (interface{}, error) {
	offset, err := self.publish(ctx)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	output := make(chan MQItem, 16)
	suberr := make(chan error, 1)
	go func() {
		suberr <- self.session.client.SubscribeFrom(sctx, self.section, offset, output)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-self.session.closed:
			return nil, ErrClosed
		case err := <-suberr:
			if err == nil {
				err = errors.New("mq subscription ended")
			}
			return nil, err
		case item := <-output:
			body, ok := itemBody(item, self.section)
			if !ok {
				continue
			}
			return self.session.codec.DecodeAs(body, as)
		}
	}
}

// RetrieveStream follows the section after the request item. The
// stream ends without error when ctx is canceled or the session
// closes.
func (self *requestSpec) RetrieveStream(ctx context.Context, elem reflect.Type) (sock.Stream, error) {
	offset, err := self.publish(ctx)
	if err != nil {
		return nil, err
	}
	st := &stream{elems: make(chan interface{})}
	go self.follow(ctx, st, offset, elem)
	return st, nil
}

// publish appends the request payload and returns the offset replies
// will follow from. Nothing is appended for nil payloads, the
// retrieval is then a pure follow of the section.
func (self *requestSpec) publish(ctx context.Context) (string, error) {
	if self.streaming {
		chunk, err := self.session.client.Chunk(ctx, self.section, "", 1)
		if err != nil {
			return "", err
		}
		go self.pumpElements(ctx)
		return chunk.LastOffset, nil
	}
	if self.single == nil {
		chunk, err := self.session.client.Chunk(ctx, self.section, "", 1)
		if err != nil {
			return "", err
		}
		return chunk.LastOffset, nil
	}
	return self.addItem(ctx, self.single)
}

func (self *requestSpec) addItem(ctx context.Context, v interface{}) (string, error) {
	wire, err := self.session.codec.Encode(v)
	if err != nil {
		return "", err
	}
	ntf := jsoff.NewNotifyMessage(self.section, []interface{}{wire})
	return self.session.client.Add(ctx, self.section, ntf)
}

func (self *requestSpec) pumpElements(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-self.session.closed:
			return
		case elem, ok := <-self.elems:
			if !ok {
				return
			}
			if _, err := self.addItem(ctx, elem); err != nil {
				self.session.Log().Warnf("publish element error %s", err)
				return
			}
		}
	}
}

func (self *requestSpec) follow(ctx context.Context, st *stream, offset string, elem reflect.Type) {
	defer close(st.elems)

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	output := make(chan MQItem, 100)
	suberr := make(chan error, 1)
	go func() {
		suberr <- self.session.client.SubscribeFrom(sctx, self.section, offset, output)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-self.session.closed:
			return
		case err := <-suberr:
			st.err = err
			return
		case item := <-output:
			body, ok := itemBody(item, self.section)
			if !ok {
				continue
			}
			value, err := self.session.codec.DecodeAs(body, elem)
			if err != nil {
				st.err = err
				return
			}
			select {
			case st.elems <- value:
			case <-ctx.Done():
				return
			case <-self.session.closed:
				return
			}
		}
	}
}

// itemBody unwraps the first notify param of items briefed with the
// section method, anything else on the section is skipped.
func itemBody(item MQItem, section string) (interface{}, bool) {
	if item.Brief != section {
		return nil, false
	}
	ntf := item.Notify()
	if len(ntf.Params) == 0 {
		return nil, false
	}
	return ntf.Params[0], true
}

type stream struct {
	elems chan interface{}
	err   error
}

func (self *stream) Elements() <-chan interface{} {
	return self.elems
}

// Err is valid after Elements is closed.
func (self *stream) Err() error {
	return self.err
}
