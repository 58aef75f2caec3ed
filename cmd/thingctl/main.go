// thingctl reads, writes, invokes and unlinks Thing resources on any
// runtime reachable over HTTP or MQTT.
//
//	thingctl read http://gateway:8080/things/lamp/properties/brightness
//	thingctl write http://gateway:8080/things/lamp/properties/brightness 80
//	thingctl invoke mqtt://broker/things/lamp/actions/toggle '{"on":true}'
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
