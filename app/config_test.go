package app

import (
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"io/ioutil"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	log.SetOutput(ioutil.Discard)
	os.Exit(m.Run())
}

func TestConfig(t *testing.T) {
	assert := assert.New(t)

	cfgdata := `
---
gateway:
  connect: ws://127.0.0.1:6660
  route:
    value: orders
  command:
    expr: headers.cmd
  responsetype:
    value: string
`

	appcfg := &AppConfig{}
	err := appcfg.LoadYamldata([]byte(cfgdata))
	assert.Nil(err)
	u := appcfg.Gateway.URL()
	assert.Equal("ws://127.0.0.1:6660", u.String())
	assert.Equal("ws", u.Scheme)
	assert.Equal("orders", appcfg.Gateway.Route.Value)
	assert.Equal("headers.cmd", appcfg.Gateway.Command.Expr)
}

func TestConfigValidation(t *testing.T) {
	assert := assert.New(t)

	noRoute := `
gateway:
  connect: ws://127.0.0.1:6660
`
	appcfg := &AppConfig{}
	err := appcfg.LoadYamldata([]byte(noRoute))
	assert.NotNil(err)
	assert.Contains(err.Error(), "gateway.route is required")

	badScheme := `
gateway:
  connect: http://127.0.0.1:6660
  route:
    value: orders
`
	appcfg1 := &AppConfig{}
	err = appcfg1.LoadYamldata([]byte(badScheme))
	assert.NotNil(err)
	assert.Contains(err.Error(), "unsupported connect scheme")

	bothSet := `
gateway:
  connect: ws://127.0.0.1:6660
  route:
    value: orders
    expr: headers.route
`
	appcfg2 := &AppConfig{}
	err = appcfg2.LoadYamldata([]byte(bothSet))
	assert.NotNil(err)
	assert.Contains(err.Error(), "has both value and expr")

	neitherSet := `
gateway:
  connect: ws://127.0.0.1:6660
  route: {}
`
	appcfg3 := &AppConfig{}
	err = appcfg3.LoadYamldata([]byte(neitherSet))
	assert.NotNil(err)
	assert.Contains(err.Error(), "needs a value or an expr")
}

func TestBuildGateway(t *testing.T) {
	assert := assert.New(t)

	cfgdata := `
gateway:
  connect: ws://127.0.0.1:6660
  contenttype: application/json
  handshaketimeout: 3
  route:
    expr: headers.route
  command:
    value: request-response
  elementtype:
    value: int
  responsetype:
    value:
      kind: slice
      elem: string
`
	appcfg := &AppConfig{}
	err := appcfg.LoadYamldata([]byte(cfgdata))
	assert.Nil(err)

	gw, err := appcfg.Gateway.Build()
	assert.Nil(err)
	assert.NotNil(gw)
	defer gw.Close()

	// redis connects build the mq transport
	mqdata := `
gateway:
  connect: redis://127.0.0.1:6379/7
  route:
    value: jobs
`
	appcfg1 := &AppConfig{}
	err = appcfg1.LoadYamldata([]byte(mqdata))
	assert.Nil(err)
	gw1, err := appcfg1.Gateway.Build()
	assert.Nil(err)
	assert.NotNil(gw1)
	defer gw1.Close()
}

func TestBuildBadExpr(t *testing.T) {
	assert := assert.New(t)

	spec := &ResolverSpec{Expr: "payload +"}
	r, err := spec.Build()
	assert.Nil(r)
	assert.NotNil(err)

	constant := &ResolverSpec{Value: "orders"}
	r1, err := constant.Build()
	assert.Nil(err)
	assert.Contains(r1.String(), "orders")
}
