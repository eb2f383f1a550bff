package gateway

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"sync"
	"testing"
	"time"
)

func TestConnectorSingleFlight(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	tr := newFakeTransport()
	tr.delay = 30 * time.Millisecond

	conn := NewConnector(tr, nil)
	defer conn.Dispose()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := conn.Acquire(rootCtx)
			assert.Nil(err)
			assert.Equal(tr.session, session)
		}()
	}
	wg.Wait()

	assert.Equal(1, tr.connectCount())
}

func TestConnectorWaiterTimeout(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	tr := newFakeTransport()
	tr.delay = 80 * time.Millisecond

	conn := NewConnector(tr, nil)
	defer conn.Dispose()

	// an impatient acquirer gives up without aborting the establishment
	quick, cancel := context.WithTimeout(rootCtx, 10*time.Millisecond)
	defer cancel()
	_, err := conn.Acquire(quick)
	assert.Equal(context.DeadlineExceeded, err)

	session, err := conn.Acquire(rootCtx)
	assert.Nil(err)
	assert.Equal(tr.session, session)
	assert.Equal(1, tr.connectCount())
}

func TestConnectorFailureMemoized(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	tr := newFakeTransport()
	tr.dialErr = errors.New("refused")

	conn := NewConnector(tr, nil)
	defer conn.Dispose()

	for i := 0; i < 3; i++ {
		_, err := conn.Acquire(rootCtx)
		assert.Equal(tr.dialErr, err)
	}
	assert.Equal(1, tr.connectCount())
}

func TestConnectorDispose(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	tr := newFakeTransport()

	conn := NewConnector(tr, nil)
	_, err := conn.Acquire(rootCtx)
	assert.Nil(err)

	assert.Nil(conn.Dispose())
	assert.Equal(1, tr.session.closeCount())

	_, err = conn.Acquire(rootCtx)
	assert.True(errors.Is(err, ErrDisposed))

	assert.Nil(conn.Dispose())
	assert.Equal(1, tr.session.closeCount())
}

func TestConnectorDisposeDuringEstablish(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	tr := newFakeTransport()
	tr.delay = 50 * time.Millisecond

	conn := NewConnector(tr, nil)
	conn.Initialize(rootCtx)
	assert.Nil(conn.Dispose())

	_, err := conn.Acquire(rootCtx)
	assert.True(errors.Is(err, ErrDisposed))

	// the late session is released once the dial lands
	time.Sleep(100 * time.Millisecond)
	assert.Equal(1, tr.session.closeCount())
}

func TestConnectorInitializeOnce(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	tr := newFakeTransport()
	conn := NewConnector(tr, nil)
	defer conn.Dispose()

	conn.Initialize(rootCtx)
	conn.Initialize(rootCtx)

	_, err := conn.Acquire(rootCtx)
	assert.Nil(err)
	assert.Equal(1, tr.connectCount())
}
