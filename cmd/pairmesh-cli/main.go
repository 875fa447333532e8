// Command pairmesh-cli operates a pairmesh server over its HTTP control API.
//
// Usage:
//
//	pairmesh-cli session request 15551234567
//	pairmesh-cli -o json session list
//	pairmesh-cli system health
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/pairmesh-go/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
