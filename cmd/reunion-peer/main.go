// reunion-peer joins a reunion room from the terminal. It negotiates a
// peer connection through the signaling server and runs the chat side
// channel over stdin and stdout.
//
// Usage:
//
//	reunion-peer [global flags] join <room> [--name N] [--hint initiator|responder] [--audio] [--video]
//	reunion-peer [global flags] new
//	reunion-peer [global flags] diagnose <room> --role caller|callee
//	reunion-peer [global flags] rooms [--open]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/mossy-p/reunion/config"
	"github.com/mossy-p/reunion/internal/logging"
	"github.com/mossy-p/reunion/internal/signaling"
)

// globals are the flags shared by every command.
type globals struct {
	cfg   *config.Config
	token string
}

func (g *globals) client() (*signaling.Client, error) {
	var opts []signaling.Option
	if g.token != "" {
		opts = append(opts, signaling.WithToken(g.token))
	}
	return signaling.NewClient(g.cfg.Reunion.SignalingURL, opts...)
}

type command struct {
	summary string
	run     func(g *globals, args []string) error
}

var commands = map[string]command{
	"join":     {"join a room and chat over stdin", runJoin},
	"new":      {"create a room and print its code", runNew},
	"diagnose": {"check a room's signaling state", runDiagnose},
	"rooms":    {"list rooms", runRooms},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logging.Error("%v", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		server     string
		debug      bool
		g          globals
	)

	flagSet := pflag.NewFlagSet("reunion-peer", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flagSet.StringVar(&server, "server", "", "signaling server base URL (overrides config)")
	flagSet.StringVar(&g.token, "token", os.Getenv("REUNION_TOKEN"), "bearer token for admin routes")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() { printUsage(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if debug {
		logging.EnableDebug()
	}

	g.cfg = config.Load()
	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		g.cfg = cfg
	}
	if server != "" {
		g.cfg.Reunion.SignalingURL = server
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(flagSet)
		return pflag.ErrHelp
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}
	return cmd.run(&g, rest[1:])
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: reunion-peer [flags] <command> [args]\n\nCommands:\n")
	for _, name := range []string{"join", "new", "diagnose", "rooms"} {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n%s", flagSet.FlagUsages())
}

// parseRoom parses a command's flags and returns its single room argument.
func parseRoom(flagSet *pflag.FlagSet, args []string) (string, error) {
	if err := flagSet.Parse(args); err != nil {
		return "", err
	}
	if flagSet.NArg() != 1 {
		return "", fmt.Errorf("%s: expected exactly one room code", flagSet.Name())
	}
	return flagSet.Arg(0), nil
}
