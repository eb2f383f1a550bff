package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	log "github.com/sirupsen/logrus"
	"github.com/superisaac/jgate/app"
	"github.com/superisaac/jgate/cmd/cmdutil"
	"github.com/superisaac/jgate/gateway"
	"github.com/superisaac/jgate/sock"
	"os"
)

func parsePayload(arg string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(arg), &v); err == nil {
		return v
	}
	// non json arguments pass through as plain strings
	return arg
}

func printValue(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(data))
}

func dispatchOnce(ctx context.Context, gw *gateway.OutboundGateway, payload interface{}) error {
	value, err := gw.Handle(ctx, gateway.NewMessage(payload)).Wait(ctx)
	if err != nil {
		return err
	}
	switch v := value.(type) {
	case nil:
		return nil
	case sock.Stream:
		for elem := range v.Elements() {
			printValue(elem)
		}
		return v.Err()
	default:
		printValue(v)
		return nil
	}
}

func StartGateway() {
	flagset := flag.NewFlagSet("jgate", flag.ExitOnError)

	// connect to server
	pConnect := flagset.String("c", "", "connect url, ws/wss/redis")

	pYamlConfig := flagset.String("config", "", "path to <gateway config.yml>")

	// fixed resolver overrides
	pRoute := flagset.String("route", "", "fixed route, overrides config")
	pCommand := flagset.String("command", "", "fixed interaction command, overrides config")
	pResponseType := flagset.String("responsetype", "", "fixed response type name, overrides config")

	// logging flags
	pLogfile := flagset.String("log", "", "path to log output, default is stdout")

	// parse command-line flags
	flagset.Parse(os.Args[1:])
	cmdutil.SetupLogger(*pLogfile)

	appcfg := &app.AppConfig{}
	if *pYamlConfig != "" {
		if err := appcfg.Load(*pYamlConfig); err != nil {
			log.Panicf("load config error %s", err)
		}
	}

	cfg := &appcfg.Gateway
	if *pConnect != "" {
		cfg.Connect = *pConnect
	}
	if *pRoute != "" {
		cfg.Route = &app.ResolverSpec{Value: *pRoute}
	}
	if *pCommand != "" {
		cfg.Command = &app.ResolverSpec{Value: *pCommand}
	}
	if *pResponseType != "" {
		cfg.ResponseType = &app.ResolverSpec{Value: *pResponseType}
	}

	gw, err := cfg.Build()
	if err != nil {
		log.Panicf("build gateway error %s", err)
	}
	defer gw.Close()

	rootCtx := context.Background()
	gw.Start(rootCtx)

	if flagset.NArg() > 0 {
		// one message per argument
		for _, arg := range flagset.Args() {
			if err := dispatchOnce(rootCtx, gw, parsePayload(arg)); err != nil {
				log.Panicf("dispatch error %s", err)
			}
		}
		return
	}

	// one message per stdin line, all over the shared session
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := dispatchOnce(rootCtx, gw, parsePayload(line)); err != nil {
			log.Warnf("dispatch error %s", err)
		}
	}
}

func main() {
	StartGateway()
}
