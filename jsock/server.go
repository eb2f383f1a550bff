package jsock

import (
	"context"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/superisaac/jsoff"
	"net/http"
	"sync"
)

// RequestHandler serves one request with one response value.
type RequestHandler func(ctx context.Context, params []interface{}) (interface{}, error)

// NotifyHandler consumes a fire-and-forget send.
type NotifyHandler func(ctx context.Context, params []interface{})

// StreamHandler serves one stream interaction, pushing elements with Yield
// until it returns. A nil return ends the sequence normally.
type StreamHandler func(ctx context.Context, req *StreamRequest) error

// Responder is the serving half of the jsock protocol, an http.Handler that
// upgrades each connection to WebSocket and dispatches inbound JSON-RPC
// messages to registered handlers.
type Responder struct {
	upgrader        websocket.Upgrader
	requestHandlers map[string]RequestHandler
	notifyHandlers  map[string]NotifyHandler
	streamHandlers  map[string]StreamHandler
}

func NewResponder() *Responder {
	return &Responder{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		requestHandlers: make(map[string]RequestHandler),
		notifyHandlers:  make(map[string]NotifyHandler),
		streamHandlers:  make(map[string]StreamHandler),
	}
}

// On registers a request handler. Registration happens before serving.
func (self *Responder) On(route string, handler RequestHandler) {
	if _, exist := self.requestHandlers[route]; exist {
		log.Panicf("request handler already registered on %s", route)
	}
	self.requestHandlers[route] = handler
}

// OnNotify registers a handler for fire-and-forget sends.
func (self *Responder) OnNotify(route string, handler NotifyHandler) {
	if _, exist := self.notifyHandlers[route]; exist {
		log.Panicf("notify handler already registered on %s", route)
	}
	self.notifyHandlers[route] = handler
}

// OnStream registers a handler producing a response sequence.
func (self *Responder) OnStream(route string, handler StreamHandler) {
	if _, exist := self.streamHandlers[route]; exist {
		log.Panicf("stream handler already registered on %s", route)
	}
	self.streamHandlers[route] = handler
}

func (self *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade error %s", err)
		return
	}
	defer conn.Close()

	state := &connState{
		responder: self,
		conn:      conn,
		feeds:     make(map[string]*inFeed),
	}
	state.serve(r.Context())
}

// ListenAndServe serves handler on bind until rootCtx is done.
func ListenAndServe(rootCtx context.Context, bind string, handler http.Handler) error {
	server := &http.Server{Addr: bind, Handler: handler}
	go func() {
		<-rootCtx.Done()
		server.Shutdown(context.Background())
	}()
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// inFeed is an inbound element stream. The read loop owns ch, the handler
// side signals abandonment by closing done.
type inFeed struct {
	ch   chan interface{}
	done chan struct{}
}

type connState struct {
	responder *Responder
	conn      *websocket.Conn

	writeLock sync.Mutex

	feedLock sync.Mutex
	feeds    map[string]*inFeed
}

func (self *connState) Log() *log.Entry {
	return log.WithFields(log.Fields{
		"ws": self.conn.RemoteAddr().String(),
	})
}

func (self *connState) serve(rootCtx context.Context) {
	ctx, cancel := context.WithCancel(rootCtx)
	defer cancel()
	defer self.closeFeeds()

	for {
		_, data, err := self.conn.ReadMessage()
		if err != nil {
			self.Log().Debugf("connection ended, %s", err)
			return
		}
		msg, err := jsoff.ParseBytes(data)
		if err != nil {
			self.Log().Warnf("parse message error %s", err)
			continue
		}
		self.feed(ctx, msg)
	}
}

func (self *connState) send(msg jsoff.Message) error {
	data := []byte(jsoff.MessageString(msg))
	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	if err := self.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "conn.WriteMessage")
	}
	return nil
}

func (self *connState) feed(ctx context.Context, msg jsoff.Message) {
	if msg.IsRequest() {
		reqmsg, _ := msg.(*jsoff.RequestMessage)
		self.handleRequest(ctx, reqmsg)
		return
	}
	if msg.IsNotify() {
		ntfmsg, _ := msg.(*jsoff.NotifyMessage)
		self.handleNotify(ctx, ntfmsg)
		return
	}
	msg.Log().Warnf("unexpected message kind")
}

func (self *connState) handleRequest(ctx context.Context, reqmsg *jsoff.RequestMessage) {
	if handler, ok := self.responder.streamHandlers[reqmsg.Method]; ok {
		self.openStream(ctx, reqmsg, handler)
		return
	}

	handler, ok := self.responder.requestHandlers[reqmsg.Method]
	if !ok {
		self.send(jsoff.ErrMethodNotFound.ToMessage(reqmsg))
		return
	}
	if _, isStream := streamOpenId(reqmsg.Params); isStream {
		// channel payloads pair with stream handlers
		self.send(jsoff.ParamsError("route expects a single payload").ToMessage(reqmsg))
		return
	}

	go func() {
		result, err := handler(ctx, reqmsg.Params)
		self.send(wrapResult(reqmsg, result, err))
	}()
}

func wrapResult(reqmsg *jsoff.RequestMessage, result interface{}, err error) jsoff.Message {
	if err != nil {
		var rpcErr *jsoff.RPCError
		if errors.As(err, &rpcErr) {
			return rpcErr.ToMessage(reqmsg)
		}
		reqmsg.Log().Warnf("handler error %s", err)
		return jsoff.ErrInternalError.ToMessage(reqmsg)
	}
	if resmsg, ok := result.(jsoff.Message); ok {
		return resmsg
	}
	return jsoff.NewResultMessage(reqmsg, result)
}

func (self *connState) openStream(ctx context.Context, reqmsg *jsoff.RequestMessage, handler StreamHandler) {
	sid := idString(reqmsg.MustId())

	params := reqmsg.Params
	feed := &inFeed{
		ch:   make(chan interface{}, 16),
		done: make(chan struct{}),
	}
	if _, ok := streamOpenId(reqmsg.Params); ok {
		// the peer will feed request elements for this id
		self.feedLock.Lock()
		self.feeds[sid] = feed
		self.feedLock.Unlock()
		params = nil
	} else {
		close(feed.ch)
	}

	// ack the open so the peer can tell streams from lost requests
	self.send(jsoff.NewResultMessage(reqmsg, map[string]interface{}{streamKey: sid}))

	go func() {
		defer self.dropFeed(sid, feed)
		sreq := &StreamRequest{Params: params, In: feed.ch, conn: self, sid: sid}
		if err := handler(ctx, sreq); err != nil {
			self.send(jsoff.NewNotifyMessage(methodError, []interface{}{sid, errorBody(err)}))
			return
		}
		self.send(jsoff.NewNotifyMessage(methodEnd, []interface{}{sid}))
	}()
}

func (self *connState) dropFeed(sid string, feed *inFeed) {
	close(feed.done)
	self.feedLock.Lock()
	defer self.feedLock.Unlock()
	delete(self.feeds, sid)
}

func (self *connState) lookupFeed(sid string) (*inFeed, bool) {
	self.feedLock.Lock()
	defer self.feedLock.Unlock()
	feed, ok := self.feeds[sid]
	return feed, ok
}

func (self *connState) handleNotify(ctx context.Context, ntfmsg *jsoff.NotifyMessage) {
	switch ntfmsg.Method {
	case methodData:
		sid, body, ok := frameParams(ntfmsg.Params)
		if !ok {
			return
		}
		if feed, ok := self.lookupFeed(sid); ok {
			select {
			case feed.ch <- body:
			case <-feed.done:
			}
		}
	case methodEnd, methodError:
		sid, _, ok := frameParams(ntfmsg.Params)
		if !ok {
			return
		}
		self.feedLock.Lock()
		feed, ok := self.feeds[sid]
		delete(self.feeds, sid)
		self.feedLock.Unlock()
		if ok {
			close(feed.ch)
		}
	default:
		handler, ok := self.responder.notifyHandlers[ntfmsg.Method]
		if !ok {
			ntfmsg.Log().Debugf("no notify handler")
			return
		}
		go handler(ctx, ntfmsg.Params)
	}
}

// closeFeeds unblocks handlers still ranging inbound streams after the
// connection ended.
func (self *connState) closeFeeds() {
	self.feedLock.Lock()
	defer self.feedLock.Unlock()
	for sid, feed := range self.feeds {
		close(feed.ch)
		delete(self.feeds, sid)
	}
}

// StreamRequest is one opened stream interaction on the serving side. In
// carries inbound payload elements and is closed once the peer ends its
// sequence. Yield pushes one response element to the peer.
type StreamRequest struct {
	Params []interface{}
	In     <-chan interface{}

	conn *connState
	sid  string
}

func (self *StreamRequest) Yield(v interface{}) error {
	return self.conn.send(jsoff.NewNotifyMessage(methodData, []interface{}{self.sid, v}))
}
