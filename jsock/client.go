package jsock

import (
	"context"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/superisaac/jgate/sock"
	"github.com/superisaac/jsoff"
	"reflect"
	"sync"
)

// ErrClosed rejects interactions against a closed session.
var ErrClosed = errors.New("session closed")

// Transport dials a WebSocket endpoint and speaks JSON-RPC over it.
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
	connOpts := cfg.ConnOptions()

	dialer := &websocket.Dialer{
		HandshakeTimeout: connOpts.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, self.urlstr, connOpts.RequestHeader)
	if err != nil {
		return nil, errors.Wrap(err, "websocket.Dial")
	}
	if connOpts.ReadLimit > 0 {
		conn.SetReadLimit(connOpts.ReadLimit)
	}

	session := &Session{
		conn:   conn,
		codec:  cfg.CodecOptions(),
		closed: make(chan struct{}),
	}
	go session.readLoop()
	return session, nil
}

// Session multiplexes concurrent requests over one WebSocket connection. A
// read loop feeds results to their pending requests and sequence frames to
// their streams.
type Session struct {
	conn  *websocket.Conn
	codec *sock.CodecOptions

	writeLock sync.Mutex

	pendings sync.Map // request id -> chan jsoff.Message
	streams  sync.Map // stream id -> *streamState

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func (self *Session) Log() *log.Entry {
	return log.WithFields(log.Fields{
		"ws": self.conn.RemoteAddr().String(),
	})
}

func (self *Session) Route(route string) sock.RequestSpec {
	return &requestSpec{session: self, route: route}
}

func (self *Session) Close() error {
	self.teardown(ErrClosed)
	return nil
}

func (self *Session) teardown(reason error) {
	self.closeOnce.Do(func() {
		self.closeErr = reason
		close(self.closed)
		self.conn.Close()

		self.pendings.Range(func(k, v interface{}) bool {
			if vv, ok := self.pendings.LoadAndDelete(k); ok {
				close(vv.(chan jsoff.Message))
			}
			return true
		})
		self.streams.Range(func(k, v interface{}) bool {
			if vv, ok := self.streams.LoadAndDelete(k); ok {
				vv.(*streamState).finish(reason)
			}
			return true
		})
	})
}

func (self *Session) closeReason() error {
	select {
	case <-self.closed:
		return self.closeErr
	default:
		return ErrClosed
	}
}

func (self *Session) send(msg jsoff.Message) error {
	data := []byte(jsoff.MessageString(msg))
	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	if err := self.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "conn.WriteMessage")
	}
	return nil
}

func (self *Session) readLoop() {
	for {
		_, data, err := self.conn.ReadMessage()
		if err != nil {
			self.teardown(errors.Wrap(err, "conn.ReadMessage"))
			return
		}
		msg, err := jsoff.ParseBytes(data)
		if err != nil {
			self.Log().Warnf("parse message error %s", err)
			continue
		}
		self.feed(msg)
	}
}

func (self *Session) feed(msg jsoff.Message) {
	if msg.IsResult() || msg.IsError() {
		msgId := idString(msg.MustId())
		if v, ok := self.pendings.LoadAndDelete(msgId); ok {
			v.(chan jsoff.Message) <- msg
			return
		}
		if v, ok := self.streams.Load(msgId); ok {
			st, _ := v.(*streamState)
			if msg.IsError() {
				self.streams.Delete(msgId)
				st.finish(msg.MustError())
				return
			}
			if isStreamAck(msg.MustResult()) {
				return
			}
			// a single result terminates the sequence with one element
			self.streams.Delete(msgId)
			st.push(msg.MustResult())
			st.finish(nil)
			return
		}
		msg.Log().Warnf("no pending request matches")
		return
	}

	if msg.IsNotify() {
		ntfmsg, _ := msg.(*jsoff.NotifyMessage)
		self.feedNotify(ntfmsg)
		return
	}
	msg.Log().Warnf("unexpected request on a client session")
}

func (self *Session) feedNotify(ntfmsg *jsoff.NotifyMessage) {
	switch ntfmsg.Method {
	case methodData:
		sid, body, ok := frameParams(ntfmsg.Params)
		if !ok {
			return
		}
		if v, ok := self.streams.Load(sid); ok {
			v.(*streamState).push(body)
		}
	case methodEnd:
		sid, _, ok := frameParams(ntfmsg.Params)
		if !ok {
			return
		}
		if v, ok := self.streams.LoadAndDelete(sid); ok {
			v.(*streamState).finish(nil)
		}
	case methodError:
		sid, body, ok := frameParams(ntfmsg.Params)
		if !ok {
			return
		}
		if v, ok := self.streams.LoadAndDelete(sid); ok {
			v.(*streamState).finish(remoteError(body))
		}
	default:
		self.Log().Debugf("notify %s dropped", ntfmsg.Method)
	}
}

type requestSpec struct {
	session   *Session
	route     string
	single    interface{}
	elems     <-chan interface{}
	etype     reflect.Type
	streaming bool
}

func (self *requestSpec) Data(v interface{}) sock.RequestSpec {
	self.single = v
	return self
}

func (self *requestSpec) DataStream(elems <-chan interface{}, elem reflect.Type) sock.RequestSpec {
	self.elems = elems
	self.etype = elem
	self.streaming = true
	return self
}

// Send fires notifies without expecting anything back, one notify per
// element for sequence payloads.
func (self *requestSpec) Send(ctx context.Context) error {
	if !self.streaming {
		wire, err := self.session.codec.Encode(self.single)
		if err != nil {
			return err
		}
		return self.session.send(jsoff.NewNotifyMessage(self.route, []interface{}{wire}))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case elem, ok := <-self.elems:
			if !ok {
				return nil
			}
			wire, err := self.session.codec.Encode(elem)
			if err != nil {
				return err
			}
			if err := self.session.send(jsoff.NewNotifyMessage(self.route, []interface{}{wire})); err != nil {
				return err
			}
		}
	}
}

func (self *requestSpec) RetrieveOne(ctx context.Context, as reflect.Type) (interface{}, error) {
	reqId := jsoff.NewUuid()
	resultChannel := make(chan jsoff.Message, 1)
	self.session.pendings.Store(reqId, resultChannel)
	defer self.session.pendings.Delete(reqId)

	if err := self.openRequest(ctx, reqId); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resmsg, ok := <-resultChannel:
		if !ok {
			return nil, self.session.closeReason()
		}
		if resmsg.IsError() {
			return nil, resmsg.MustError()
		}
		return self.session.codec.DecodeAs(resmsg.MustResult(), as)
	}
}

func (self *requestSpec) RetrieveStream(ctx context.Context, elem reflect.Type) (sock.Stream, error) {
	reqId := jsoff.NewUuid()
	st := newStreamState(ctx, elem, self.session.codec)
	self.session.streams.Store(reqId, st)

	if err := self.openRequest(ctx, reqId); err != nil {
		self.session.streams.Delete(reqId)
		return nil, err
	}
	return st, nil
}

func (self *requestSpec) openRequest(ctx context.Context, reqId string) error {
	if self.streaming {
		marker := map[string]interface{}{streamKey: reqId}
		if err := self.session.send(jsoff.NewRequestMessage(reqId, self.route, []interface{}{marker})); err != nil {
			return err
		}
		go self.feedElements(ctx, reqId)
		return nil
	}

	wire, err := self.session.codec.Encode(self.single)
	if err != nil {
		return err
	}
	return self.session.send(jsoff.NewRequestMessage(reqId, self.route, []interface{}{wire}))
}

// feedElements pumps the payload sequence behind an opened request.
func (self *requestSpec) feedElements(ctx context.Context, reqId string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-self.session.closed:
			return
		case elem, ok := <-self.elems:
			if !ok {
				self.session.send(jsoff.NewNotifyMessage(methodEnd, []interface{}{reqId}))
				return
			}
			wire, err := self.session.codec.Encode(elem)
			if err != nil {
				self.session.send(jsoff.NewNotifyMessage(methodError, []interface{}{reqId, errorBody(err)}))
				return
			}
			if err := self.session.send(jsoff.NewNotifyMessage(methodData, []interface{}{reqId, wire})); err != nil {
				self.session.Log().Warnf("send element error %s", err)
				return
			}
		}
	}
}

// streamState buffers one response sequence between the session read loop
// and its consumer, so a slow consumer never stalls the shared connection.
// Cancelling the request context ends the sequence without an error, the
// same way the mq transport does.
type streamState struct {
	etype   reflect.Type
	codec   *sock.CodecOptions
	ctxDone <-chan struct{}

	lock   sync.Mutex
	queue  []interface{}
	done   bool
	err    error
	notify chan struct{}
	elems  chan interface{}
}

func newStreamState(ctx context.Context, etype reflect.Type, codec *sock.CodecOptions) *streamState {
	st := &streamState{
		etype:   etype,
		codec:   codec,
		ctxDone: ctx.Done(),
		notify:  make(chan struct{}, 1),
		elems:   make(chan interface{}),
	}
	go st.pump()
	return st
}

func (self *streamState) Elements() <-chan interface{} {
	return self.elems
}

func (self *streamState) Err() error {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.err
}

func (self *streamState) signal() {
	select {
	case self.notify <- struct{}{}:
	default:
	}
}

func (self *streamState) push(body interface{}) {
	value, err := self.codec.DecodeAs(body, self.etype)
	if err != nil {
		self.finish(errors.Wrap(err, "decode element"))
		return
	}
	self.lock.Lock()
	if self.done {
		self.lock.Unlock()
		return
	}
	self.queue = append(self.queue, value)
	self.lock.Unlock()
	self.signal()
}

func (self *streamState) finish(err error) {
	self.lock.Lock()
	if self.done {
		self.lock.Unlock()
		return
	}
	self.done = true
	self.err = err
	self.lock.Unlock()
	self.signal()
}

// pump drains the queue into the element channel and closes it after the
// terminal signal, queued elements first.
func (self *streamState) pump() {
	for {
		select {
		case <-self.ctxDone:
			self.abandon()
			return
		case <-self.notify:
		}
		for {
			self.lock.Lock()
			if len(self.queue) == 0 {
				done := self.done
				self.lock.Unlock()
				if done {
					close(self.elems)
					return
				}
				break
			}
			value := self.queue[0]
			self.queue = self.queue[1:]
			self.lock.Unlock()

			select {
			case self.elems <- value:
			case <-self.ctxDone:
				self.abandon()
				return
			}
		}
	}
}

// abandon ends the sequence on context cancellation, later frames are
// discarded.
func (self *streamState) abandon() {
	self.lock.Lock()
	self.done = true
	self.queue = nil
	self.lock.Unlock()
	close(self.elems)
}
