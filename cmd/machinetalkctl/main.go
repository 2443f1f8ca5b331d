// Command machinetalkctl is a thin demonstration of wiring a
// machinetalk.ClientConfig from flags. It does not ship a transport
// binding, so it can resolve and print configuration but cannot itself
// connect to a controller — that requires an integrator to supply a
// StatusTransport/CommandTransport implementation for their broker.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "machinetalkctl"
	app.Usage = "inspect the machinetalk client configuration resolved from flags"
	app.Commands = []cli.Command{
		ConfigCommand,
	}
	app.ErrWriter = os.Stderr

	app.CommandNotFound = func(c *cli.Context, command string) {
		fmt.Fprintf(app.ErrWriter, "machinetalkctl: unknown subcommand %q\n", command)
		fmt.Fprintf(app.ErrWriter, "Run '%s --help' for usage.\n", c.App.Name)
		os.Exit(1)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(app.ErrWriter, err)
		os.Exit(1)
	}
}
