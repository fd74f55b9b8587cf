// meteoctl is the console client for the meteolog server.
//
// With arguments it runs a single command and exits; without arguments on a
// terminal it starts an interactive prompt.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/meteolog/internal/client"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	server := flag.String("server", "http://localhost:8000", "meteolog server address")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	app := &app{client: client.New(&client.Config{BaseURL: *server, Timeout: *timeout})}

	if args := flag.Args(); len(args) > 0 {
		if err := app.dispatch(args); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "usage: meteoctl [flags] <command> [args]")
		fmt.Fprintln(os.Stderr, `run "meteoctl help" for commands; the prompt needs a terminal`)
		os.Exit(2)
	}

	app.repl()
}

var commands = []prompt.Suggest{
	{Text: "status", Description: "Server health and component statistics"},
	{Text: "latest", Description: "Most recent reading"},
	{Text: "recent", Description: "Newest readings: recent [n]"},
	{Text: "ingest", Description: "Submit a reading: ingest <sensor> <temp>"},
	{Text: "average", Description: "Window average: average [minutes]"},
	{Text: "summary", Description: "Window summary: summary [minutes]"},
	{Text: "simulate", Description: "Generate data: simulate [sensors] [per-sensor]"},
	{Text: "export", Description: "Parquet export: export <file> [minutes] [compression]"},
	{Text: "clear", Description: "Delete all readings"},
	{Text: "help", Description: "Show command help"},
	{Text: "exit", Description: "Leave the prompt"},
}

func completer(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	// Only the command word is completed, not its arguments.
	if text == "" || strings.Contains(strings.TrimLeft(text, " "), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
}

func (a *app) repl() {
	fmt.Printf("meteoctl %s (server %s)\n", Version, a.client.BaseURL())
	fmt.Println(`type "help" for commands, "exit" to leave`)

	p := prompt.New(
		a.execute,
		completer,
		prompt.OptionTitle("meteoctl"),
		prompt.OptionPrefix("meteolog> "),
		prompt.OptionPrefixTextColor(prompt.Cyan),
	)
	p.Run()
}

func (a *app) execute(line string) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return
	}
	if args[0] == "exit" || args[0] == "quit" {
		fmt.Println("bye")
		os.Exit(0)
	}
	if err := a.dispatch(args); err != nil {
		fmt.Println("error:", err)
	}
}
