package expr

import (
	"context"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/superisaac/jgate/gateway"
	"io/ioutil"
	"os"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	if true {
		log.SetOutput(ioutil.Discard)
	}
	os.Exit(m.Run())
}

func TestScriptBindings(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	r, err := Script("headers.route")
	assert.Nil(err)
	assert.Equal("headers.route", r.String())

	msg := gateway.NewMessage("hi").WithHeader("route", "uppercase")
	v, err := r.Resolve(rootCtx, msg)
	assert.Nil(err)
	assert.Equal("uppercase", v)

	r = MustScript("'prefix.' + payload")
	v, err = r.Resolve(rootCtx, gateway.NewMessage("joe"))
	assert.Nil(err)
	assert.Equal("prefix.joe", v)

	r = MustScript("msg.payload")
	v, err = r.Resolve(rootCtx, gateway.NewMessage("raw"))
	assert.Nil(err)
	assert.Equal("raw", v)
}

func TestScriptMissingHeader(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	r := MustScript("headers.nothing")
	v, err := r.Resolve(rootCtx, gateway.NewMessage("hi"))
	assert.Nil(err)
	assert.Nil(v)
}

func TestScriptExports(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	r := MustScript("40 + 2")
	v, err := r.Resolve(rootCtx, gateway.NewMessage(nil))
	assert.Nil(err)
	assert.Equal(int64(42), v)

	r = MustScript(`({kind: "slice", elem: "int"})`)
	v, err = r.Resolve(rootCtx, gateway.NewMessage(nil))
	assert.Nil(err)
	spec, ok := v.(map[string]interface{})
	assert.True(ok)
	assert.Equal("slice", spec["kind"])
}

func TestScriptCompileError(t *testing.T) {
	assert := assert.New(t)

	_, err := Script("headers.(")
	assert.NotNil(err)
}

func TestScriptRaise(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	r := MustScript(`(function() { throw new Error("nope"); })()`)
	_, err := r.Resolve(rootCtx, gateway.NewMessage(nil))
	assert.NotNil(err)
	assert.Contains(err.Error(), "nope")
}

func TestScriptInterrupt(t *testing.T) {
	assert := assert.New(t)
	rootCtx := context.Background()

	ctx, cancel := context.WithTimeout(rootCtx, 30*time.Millisecond)
	defer cancel()

	r := MustScript("while (true) {}")
	begin := time.Now()
	_, err := r.Resolve(ctx, gateway.NewMessage(nil))
	assert.Equal(Interrupted, err)
	assert.Less(int64(time.Since(begin)), int64(time.Second))
}

func TestScriptAsGatewayResolver(t *testing.T) {
	assert := assert.New(t)

	// the compiled script satisfies the resolver contract
	var r gateway.Resolver = MustScript("payload")
	assert.Equal("payload", r.String())
}
