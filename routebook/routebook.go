package routebook

import (
	"context"
	"encoding/json"
	log "github.com/sirupsen/logrus"
	"github.com/superisaac/jgate/gateway"
	"github.com/superisaac/jgate/jsock"
	"os"
	"os/exec"
	"time"
)

// A routebook declares served routes in yaml, each route runs either
// a js script or a shell command against the request payload.
func NewRoutebook() *Routebook {
	return &Routebook{}
}

func (self RouteT) CanServe() bool {
	return self.CanRunScript() || self.CanRunShell()
}

func (self RouteT) CanRunScript() bool {
	return self.scriptResolver != nil
}

func (self RouteT) CanRunShell() bool {
	return self.Shell != nil && self.Shell.Cmd != ""
}

func (self RouteT) RunScript(ctx context.Context, payload interface{}) (interface{}, error) {
	return self.scriptResolver.Resolve(ctx, gateway.NewMessage(payload))
}

// RunShell pipes the payload json to the command and parses its
// stdout as the result.
func (self RouteT) RunShell(rootctx context.Context, payload interface{}, routeName string) (interface{}, error) {
	var ctx context.Context
	var cancel func()
	if self.Shell.Timeout != nil {
		ctx, cancel = context.WithTimeout(
			rootctx,
			time.Second*time.Duration(*self.Shell.Timeout))
	} else {
		ctx, cancel = context.WithCancel(rootctx)
	}
	defer cancel()
	cmd := exec.CommandContext(ctx, "sh", "-c", self.Shell.Cmd)

	cmd.Env = append(os.Environ(), self.Shell.Env...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	defer stdin.Close()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	stdin.Write(data)
	stdin.Close()

	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	if cmd.Process != nil {
		log.Infof("command for %s received output, pid %#v", routeName, cmd.Process.Pid)
	}
	var parsed interface{}
	err = json.Unmarshal(out, &parsed)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

func (self RouteT) run(ctx context.Context, payload interface{}, routeName string) (interface{}, error) {
	if self.CanRunScript() {
		return self.RunScript(ctx, payload)
	}
	return self.RunShell(ctx, payload, routeName)
}

func firstParam(params []interface{}) interface{} {
	if len(params) > 0 {
		return params[0]
	}
	return nil
}

// Register installs the configured routes on a responder.
func (self *Routebook) Register(responder *jsock.Responder) {
	for name, route := range self.Config.Routes {
		if !route.CanServe() {
			log.Warnf("route %s has no script nor shell", name)
			continue
		}
		log.Infof("routebook register %s", name)
		name := name
		route := route
		switch {
		case route.Notify:
			responder.OnNotify(name, func(ctx context.Context, params []interface{}) {
				if _, err := route.run(ctx, firstParam(params), name); err != nil {
					log.Warnf("error running notify %s, %s", name, err)
				}
			})
		case route.Stream:
			responder.OnStream(name, func(ctx context.Context, req *jsock.StreamRequest) error {
				return route.runStream(ctx, req, name)
			})
		default:
			responder.On(name, func(ctx context.Context, params []interface{}) (interface{}, error) {
				return route.run(ctx, firstParam(params), name)
			})
		}
	}
}

// runStream serves stream opens and channel opens. A single payload
// evaluates once and its elements are yielded, a channel input
// evaluates once per incoming element.
func (self RouteT) runStream(ctx context.Context, req *jsock.StreamRequest, routeName string) error {
	if req.Params != nil {
		v, err := self.run(ctx, firstParam(req.Params), routeName)
		if err != nil {
			return err
		}
		return yieldAll(req, v)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case elem, ok := <-req.In:
			if !ok {
				return nil
			}
			v, err := self.run(ctx, elem, routeName)
			if err != nil {
				return err
			}
			if err := req.Yield(v); err != nil {
				return err
			}
		}
	}
}

func yieldAll(req *jsock.StreamRequest, v interface{}) error {
	if items, ok := v.([]interface{}); ok {
		for _, item := range items {
			if err := req.Yield(item); err != nil {
				return err
			}
		}
		return nil
	}
	return req.Yield(v)
}
