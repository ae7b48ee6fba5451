package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gitwiki/internal/client/client"
)

type command struct {
	summary    string
	usage      string
	needsToken bool
	run        func(ctx context.Context, a *App, c client.Client, args []string) error
}

var commands = map[string]command{
	"ping": {
		summary: "Check that the admin endpoint is reachable",
		usage:   "wikictl [-a addr] ping",
		run:     runPing,
	},
	"add": {
		summary:    "Add an identity to the credential vault",
		usage:      "wikictl add --name NAME --url PROFILE_URL [--email EMAIL] [--role standard|administrator] [--json]",
		needsToken: true,
		run:        runAdd,
	},
	"list": {
		summary:    "List vault identities",
		usage:      "wikictl list [--json]",
		needsToken: true,
		run:        runList,
	},
	"lookup": {
		summary:    "Show the identity bound to a profile URL",
		usage:      "wikictl lookup PROFILE_URL [--json]",
		needsToken: true,
		run:        runLookup,
	},
}

// splitCommand separates global flags from the command and its arguments.
// The first argument naming a known command (or help) starts the command.
func splitCommand(args []string) (string, []string) {
	for i, arg := range args {
		if _, ok := commands[arg]; ok || arg == "help" {
			return arg, args[i+1:]
		}
	}
	return "", nil
}

// Run executes the command found in args (os.Args[1:] without the program
// name). Global flags before the command are read by the config package.
func (a *App) Run(ctx context.Context, args []string) error {
	name, rest := splitCommand(args)
	if name == "" || name == "help" {
		printHelp(a.out)
		if name == "" {
			return fmt.Errorf("no command given")
		}
		return nil
	}
	cmd := commands[name]

	var token string
	if cmd.needsToken {
		var err error
		if token, err = a.token(); err != nil {
			return err
		}
	}

	c, err := a.connect(a.config.ServerEndpointAddr, token)
	if err != nil {
		return fmt.Errorf("connect %s: %w", a.config.ServerEndpointAddr, err)
	}
	defer c.Close()

	return cmd.run(ctx, a, c, rest)
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "wikictl administers a gitwiki server over its gRPC admin endpoint.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags: -a addr  -t seconds  -k token-file  -c config.json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")

	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	width := 0
	for _, n := range names {
		width = max(width, len(n))
	}
	for _, n := range names {
		fmt.Fprintf(w, "  %s%s  %s\n", n, strings.Repeat(" ", width-len(n)), commands[n].summary)
		fmt.Fprintf(w, "  %s  usage: %s\n", strings.Repeat(" ", width), commands[n].usage)
	}
}
