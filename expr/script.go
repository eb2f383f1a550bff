package expr

import (
	"context"
	"github.com/dop251/goja"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/superisaac/jgate/gateway"
)

// InterruptedMessage is the string value of Interrupted.
var InterruptedMessage = "script interrupted"

// Interrupted is returned by Resolve when the context expires while the
// script is still running.
var Interrupted = errors.New(InterruptedMessage)

// ScriptResolver evaluates an ECMAScript expression against the inbound
// message. The script sees the bindings payload, headers and msg, and its
// completion value is the resolution result. Compilation happens once, each
// evaluation runs in a fresh runtime.
//
// Object literals in expression position need parentheses, for example
// ({kind: "slice", elem: "int"}).
type ScriptResolver struct {
	src     string
	program *goja.Program
}

// Script compiles src into a resolver.
func Script(src string) (*ScriptResolver, error) {
	program, err := goja.Compile("", src, true)
	if err != nil {
		return nil, errors.Wrap(err, "goja.Compile")
	}
	return &ScriptResolver{src: src, program: program}, nil
}

// MustScript is Script for statically known sources, panicking on compile
// errors.
func MustScript(src string) *ScriptResolver {
	resolver, err := Script(src)
	if err != nil {
		log.Panicf("compile script %q, %s", src, err)
	}
	return resolver
}

func (self *ScriptResolver) String() string {
	return self.src
}

func (self *ScriptResolver) Resolve(ctx context.Context, msg *gateway.Message) (interface{}, error) {
	vm := goja.New()

	headers := msg.Headers
	if headers == nil {
		headers = map[string]interface{}{}
	}
	vm.Set("payload", msg.Payload)
	vm.Set("headers", headers)
	vm.Set("msg", map[string]interface{}{
		"payload": msg.Payload,
		"headers": headers,
	})

	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// harmless when the program already returned
		vm.Interrupt(InterruptedMessage)
	}()

	value, err := vm.RunProgram(self.program)
	cancel()

	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return nil, Interrupted
		}
		return nil, errors.Wrapf(err, "script [%s]", self.src)
	}
	return value.Export(), nil
}
