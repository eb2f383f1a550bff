package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	log "github.com/sirupsen/logrus"
	"github.com/superisaac/jgate/cmd/cmdutil"
	"github.com/superisaac/jgate/jsock"
	"github.com/superisaac/jgate/routebook"
	"github.com/superisaac/jsoff"
	"os"
	"time"
)

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func builtinRoutes(responder *jsock.Responder) {
	responder.On("echo", func(ctx context.Context, params []interface{}) (interface{}, error) {
		if len(params) > 0 {
			return params[0], nil
		}
		return nil, nil
	})

	responder.On("greet", func(ctx context.Context, params []interface{}) (interface{}, error) {
		if len(params) == 0 {
			return nil, jsoff.ParamsError("name required")
		}
		return fmt.Sprintf("hello %v", params[0]), nil
	})

	// counts the payload down to 1
	responder.OnStream("countdown", func(ctx context.Context, req *jsock.StreamRequest) error {
		n := 3
		if len(req.Params) > 0 {
			if parsed, ok := asInt(req.Params[0]); ok {
				n = parsed
			}
		}
		for i := n; i > 0; i-- {
			if err := req.Yield(i); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(300 * time.Millisecond):
			}
		}
		return nil
	})

	// yields a timestamp per second until the peer goes away
	responder.OnStream("clock", func(ctx context.Context, req *jsock.StreamRequest) error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				if err := req.Yield(now.Format(time.RFC3339)); err != nil {
					return err
				}
			}
		}
	})

	// yields the running total of a channel of ints
	responder.OnStream("sum", func(ctx context.Context, req *jsock.StreamRequest) error {
		total := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			case elem, ok := <-req.In:
				if !ok {
					return nil
				}
				n, good := asInt(elem)
				if !good {
					return jsoff.ParamsError("sum expects ints")
				}
				total += n
				if err := req.Yield(total); err != nil {
					return err
				}
			}
		}
	})

	responder.OnNotify("ingest", func(ctx context.Context, params []interface{}) {
		log.Infof("ingest %v", params)
	})
}

func StartServer() {
	flagset := flag.NewFlagSet("jgated", flag.ExitOnError)

	// bind address
	pBind := flagset.String("bind", "", "bind address, default is 127.0.0.1:6660")

	pYamlConfig := flagset.String("config", "", "path to <routebook.yml>")

	// logging flags
	pLogfile := flagset.String("log", "", "path to log output, default is stdout")

	// parse command-line flags
	flagset.Parse(os.Args[1:])
	cmdutil.SetupLogger(*pLogfile)

	bind := *pBind
	if bind == "" {
		bind = "127.0.0.1:6660"
	}

	responder := jsock.NewResponder()
	builtinRoutes(responder)

	if *pYamlConfig != "" {
		rb := routebook.NewRoutebook()
		if err := rb.Config.Load(*pYamlConfig); err != nil {
			log.Panicf("load routebook error %s", err)
		}
		rb.Register(responder)
	}

	rootCtx := context.Background()
	log.Infof("jgated starts at %s", bind)
	if err := jsock.ListenAndServe(rootCtx, bind, responder); err != nil {
		log.Panicf("server exit %s", err)
	}
}

func main() {
	StartServer()
}
