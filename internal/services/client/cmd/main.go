package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v2"
)

var version = "dev"

// flags shared by every command
type globalFlags struct {
	configFile string
	logLevel   string
}

func main() {
	g := &globalFlags{}

	app := &cli.App{
		Name:    "sensorlink",
		Usage:   "client for the smoke sensor node: live readings, commands and offline sync",
		Version: version,
		UsageText: "sensorlink [--config <file>] [--log debug|info|warn|error] <command>" +
			"\n\nEXAMPLE:" +
			"\n\tconnect to the device and serve the status API" +
			"\n\t\tDEVICE_ADDRESS=192.168.4.1:8080 sensorlink run",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &g.configFile, Usage: "load configuration from `FILE`", EnvVars: []string{"SENSORLINK_CONFIG"}},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &g.logLevel, Usage: "`LEVEL` overrides the configured log level"},
		},
		Commands: []*cli.Command{
			runCommand(g),
			syncCommand(g),
			sendCommand(g),
			pendingCommand(g),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sensorlink:", err)
		os.Exit(1)
	}
}
