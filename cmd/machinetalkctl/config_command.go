package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"github.com/cerna/pymachinetalk/logger"
	"github.com/cerna/pymachinetalk/machinetalk"
)

const configDescription = `Usage:

    machinetalkctl config [options...]

Description:

Resolves the status/command/error endpoint URIs and heartbeat settings
from flags into a machinetalk.ClientConfig and prints it as JSON, so a
caller can check what a real run would be configured with before wiring
up a transport.`

var ConfigCommand = cli.Command{
	Name:        "config",
	Usage:       "Resolve and print the client configuration",
	Description: configDescription,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "status-uri", Usage: "status subscribe endpoint URI"},
		cli.StringFlag{Name: "command-uri", Usage: "command dealer endpoint URI"},
		cli.StringFlag{Name: "error-uri", Usage: "error subscribe endpoint URI"},
		cli.DurationFlag{Name: "heartbeat-period", Value: 3 * time.Second, Usage: "command heartbeat period, 0 disables it"},
		cli.IntFlag{Name: "ping-error-threshold", Value: 2, Usage: "missed pings tolerated before declaring a timeout"},
		cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, notice, info, warn, error, or fatal"},
		cli.BoolFlag{Name: "metrics-enabled", Usage: "send dogstatsd metrics"},
		cli.StringFlag{Name: "metrics-datadog-host", Usage: "dogstatsd host:port"},
	},
	Action: configAction,
}

func configAction(c *cli.Context) error {
	cfg := machinetalk.DefaultClientConfig()
	cfg.StatusURI = c.String("status-uri")
	cfg.CommandURI = c.String("command-uri")
	cfg.ErrorURI = c.String("error-uri")
	cfg.HeartbeatPeriod = c.Duration("heartbeat-period")
	cfg.PingErrorThreshold = c.Int("ping-error-threshold")
	cfg.MetricsEnabled = c.Bool("metrics-enabled")
	cfg.MetricsDatadogHost = c.String("metrics-datadog-host")

	if _, err := logger.LevelFromString(c.String("log-level")); err != nil {
		return err
	}
	cfg.LogLevel = c.String("log-level")

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}
