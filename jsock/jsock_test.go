package jsock

import (
	"context"
	"encoding/json"
	"errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/superisaac/jgate/expr"
	"github.com/superisaac/jgate/gateway"
	"github.com/superisaac/jgate/sock"
	"github.com/superisaac/jsoff"
	"io/ioutil"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	if true {
		log.SetOutput(ioutil.Discard)
	}
	os.Exit(m.Run())
}

func startServer() (*Responder, string, func()) {
	responder := NewResponder()
	server := httptest.NewServer(responder)
	urlstr := "ws://" + server.Listener.Addr().String()
	return responder, urlstr, server.Close
}

func dial(t *testing.T, urlstr string) sock.Session {
	session, err := NewTransport(urlstr).Connect(context.Background(), nil)
	if err != nil {
		t.Fatalf("connect %s", err)
	}
	return session
}

func collectStream(t *testing.T, st sock.Stream) []interface{} {
	collected := []interface{}{}
	timer := time.NewTimer(3 * time.Second)
	defer timer.Stop()
	for {
		select {
		case elem, ok := <-st.Elements():
			if !ok {
				return collected
			}
			collected = append(collected, elem)
		case <-timer.C:
			t.Fatalf("stream timed out")
			return collected
		}
	}
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

func TestRequestResponse(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	responder, urlstr, teardown := startServer()
	defer teardown()

	responder.On("greet", func(ctx context.Context, params []interface{}) (interface{}, error) {
		name, _ := params[0].(string)
		return "hello " + name, nil
	})

	session := dial(t, urlstr)
	defer session.Close()

	value, err := session.Route("greet").Data("joe").RetrieveOne(rootCtx, reflect.TypeOf(""))
	assert.Nil(err)
	assert.Equal("hello joe", value)
}

func TestFireAndForget(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	responder, urlstr, teardown := startServer()
	defer teardown()

	received := make(chan interface{}, 1)
	responder.OnNotify("ingest", func(ctx context.Context, params []interface{}) {
		received <- params[0]
	})

	session := dial(t, urlstr)
	defer session.Close()

	err := session.Route("ingest").Data("fired").Send(rootCtx)
	assert.Nil(err)

	select {
	case v := <-received:
		assert.Equal("fired", v)
	case <-time.After(2 * time.Second):
		assert.Fail("notify not delivered")
	}
}

func TestStreamRetrieval(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	responder, urlstr, teardown := startServer()
	defer teardown()

	responder.OnStream("countdown", func(ctx context.Context, req *StreamRequest) error {
		for i := 3; i > 0; i-- {
			if err := req.Yield(i); err != nil {
				return err
			}
		}
		return nil
	})

	session := dial(t, urlstr)
	defer session.Close()

	st, err := session.Route("countdown").Data(nil).RetrieveStream(rootCtx, reflect.TypeOf(int(0)))
	assert.Nil(err)

	collected := collectStream(t, st)
	assert.Nil(st.Err())
	assert.Equal([]interface{}{3, 2, 1}, collected)
}

func TestChannelInteraction(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	responder, urlstr, teardown := startServer()
	defer teardown()

	// running totals over the inbound element stream
	responder.OnStream("sum", func(ctx context.Context, req *StreamRequest) error {
		total := 0
		for v := range req.In {
			total += asInt(v)
			if err := req.Yield(total); err != nil {
				return err
			}
		}
		return nil
	})

	session := dial(t, urlstr)
	defer session.Close()

	elems := make(chan interface{}, 3)
	elems <- 1
	elems <- 2
	elems <- 3
	close(elems)

	st, err := session.Route("sum").
		DataStream(elems, reflect.TypeOf(int(0))).
		RetrieveStream(rootCtx, reflect.TypeOf(int(0)))
	assert.Nil(err)

	collected := collectStream(t, st)
	assert.Nil(st.Err())
	assert.Equal([]interface{}{1, 3, 6}, collected)
}

func TestRequestError(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	responder, urlstr, teardown := startServer()
	defer teardown()

	responder.On("explode", func(ctx context.Context, params []interface{}) (interface{}, error) {
		return nil, jsoff.ParamsError("bad input")
	})

	session := dial(t, urlstr)
	defer session.Close()

	_, err := session.Route("explode").Data("x").RetrieveOne(rootCtx, nil)
	assert.NotNil(err)
	var rpcErr *jsoff.RPCError
	assert.True(errors.As(err, &rpcErr))

	_, err = session.Route("nothing").Data("x").RetrieveOne(rootCtx, nil)
	assert.NotNil(err)
	assert.True(errors.As(err, &rpcErr))
}

func TestStreamError(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	responder, urlstr, teardown := startServer()
	defer teardown()

	responder.OnStream("flaky", func(ctx context.Context, req *StreamRequest) error {
		if err := req.Yield("first"); err != nil {
			return err
		}
		return errors.New("boom")
	})

	session := dial(t, urlstr)
	defer session.Close()

	st, err := session.Route("flaky").Data(nil).RetrieveStream(rootCtx, nil)
	assert.Nil(err)

	collected := collectStream(t, st)
	assert.Equal([]interface{}{"first"}, collected)
	assert.NotNil(st.Err())
	assert.Contains(st.Err().Error(), "boom")
}

func TestSingleResultAsStream(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	responder, urlstr, teardown := startServer()
	defer teardown()

	responder.On("one", func(ctx context.Context, params []interface{}) (interface{}, error) {
		return "only", nil
	})

	session := dial(t, urlstr)
	defer session.Close()

	// a plain single-response route degrades to a one-element sequence
	st, err := session.Route("one").Data(nil).RetrieveStream(rootCtx, reflect.TypeOf(""))
	assert.Nil(err)
	collected := collectStream(t, st)
	assert.Nil(st.Err())
	assert.Equal([]interface{}{"only"}, collected)
}

func TestSessionClose(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	responder, urlstr, teardown := startServer()
	defer teardown()

	responder.On("slow", func(ctx context.Context, params []interface{}) (interface{}, error) {
		time.Sleep(500 * time.Millisecond)
		return "late", nil
	})

	session := dial(t, urlstr)

	failed := make(chan error, 1)
	go func() {
		_, err := session.Route("slow").Data(nil).RetrieveOne(rootCtx, nil)
		failed <- err
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Nil(session.Close())

	select {
	case err := <-failed:
		assert.True(errors.Is(err, ErrClosed))
	case <-time.After(2 * time.Second):
		assert.Fail("pending request not released")
	}
}

func TestGatewayOverWebSocket(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	responder, urlstr, teardown := startServer()
	defer teardown()

	responder.On("greet", func(ctx context.Context, params []interface{}) (interface{}, error) {
		name, _ := params[0].(string)
		return "hello " + name, nil
	})

	gw := gateway.New(NewTransport(urlstr), gateway.Constant("greet"))
	defer gw.Close()

	value, err := gw.Handle(rootCtx, gateway.NewMessage("joe")).Wait(rootCtx)
	assert.Nil(err)
	assert.Equal("hello joe", value)
}

func TestGatewayStreamOverWebSocket(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	responder, urlstr, teardown := startServer()
	defer teardown()

	responder.OnStream("countdown", func(ctx context.Context, req *StreamRequest) error {
		n := 3
		if len(req.Params) > 0 {
			n = asInt(req.Params[0])
		}
		for i := n; i > 0; i-- {
			if err := req.Yield(i); err != nil {
				return err
			}
		}
		return nil
	})

	gw := gateway.New(NewTransport(urlstr),
		expr.MustScript("headers.route"),
		gateway.WithCommand(gateway.RequestStreamOrChannel),
		gateway.WithResponseType(gateway.NamedType("int")))
	defer gw.Close()

	msg := gateway.NewMessage(2).WithHeader("route", "countdown")
	value, err := gw.Handle(rootCtx, msg).Wait(rootCtx)
	assert.Nil(err)

	st, ok := value.(sock.Stream)
	assert.True(ok)
	collected := collectStream(t, st)
	assert.Nil(st.Err())
	assert.Equal([]interface{}{2, 1}, collected)
}
