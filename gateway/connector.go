package gateway

import (
	"context"
	log "github.com/sirupsen/logrus"
	"github.com/superisaac/jgate/sock"
	"sync"
)

// Connector owns the shared session of one gateway. Establishment happens
// at most once, the first trigger wins and every acquirer shares the one
// outcome, success or failure, until Dispose.
type Connector struct {
	transport sock.Transport
	config    *sock.Config

	startOnce sync.Once
	ready     chan struct{}
	session   sock.Session
	err       error

	lock     sync.Mutex
	disposed bool
}

func NewConnector(transport sock.Transport, config *sock.Config) *Connector {
	if config == nil {
		config = &sock.Config{}
	}
	return &Connector{
		transport: transport,
		config:    config,
		ready:     make(chan struct{}),
	}
}

func (self *Connector) Log() *log.Entry {
	return log.WithFields(log.Fields{
		"rpc": "connector",
	})
}

// Initialize begins establishing the session, at most once. Later calls,
// whatever their context, are no-ops.
func (self *Connector) Initialize(ctx context.Context) {
	self.startOnce.Do(func() {
		go self.connect(ctx)
	})
}

func (self *Connector) connect(ctx context.Context) {
	session, err := self.transport.Connect(ctx, self.config)
	if err != nil {
		self.Log().Warnf("session establish error %s", err)
	} else {
		self.Log().Debugf("session established")
	}

	self.lock.Lock()
	if self.disposed {
		self.err = ErrDisposed
		self.lock.Unlock()
		close(self.ready)
		// disposal raced establishment, release the late session
		if session != nil {
			session.Close()
		}
		return
	}
	self.session = session
	self.err = err
	self.lock.Unlock()
	close(self.ready)
}

// Acquire returns the shared session, triggering establishment on first
// use. The caller's context bounds only its own wait. A lazily triggered
// dial runs detached so one request's cancellation cannot poison the
// shared handle.
func (self *Connector) Acquire(ctx context.Context) (sock.Session, error) {
	self.lock.Lock()
	if self.disposed {
		self.lock.Unlock()
		return nil, ErrDisposed
	}
	self.lock.Unlock()

	self.Initialize(context.Background())

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-self.ready:
	}

	self.lock.Lock()
	defer self.lock.Unlock()
	if self.disposed {
		return nil, ErrDisposed
	}
	return self.session, self.err
}

// Dispose closes the session if one was established and terminally marks
// the connector, later Acquire calls fail with ErrDisposed. Idempotent.
func (self *Connector) Dispose() error {
	self.lock.Lock()
	if self.disposed {
		self.lock.Unlock()
		return nil
	}
	self.disposed = true
	session := self.session
	self.lock.Unlock()

	if session == nil {
		return nil
	}
	return session.Close()
}
