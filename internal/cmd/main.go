// Package cmd is the CLI entry point.
package cmd

import (
	"bufio"
	"os"

	"github.com/mitchellh/cli"

	"github.com/acervo-ai/acervo/internal/cmd/commands/ingestcmd"
	"github.com/acervo-ai/acervo/internal/cmd/commands/migrate"
	"github.com/acervo-ai/acervo/internal/cmd/commands/server"
	"github.com/acervo-ai/acervo/internal/version"
)

// Main runs the CLI with the given arguments and returns the exit code.
func Main(args []string) int {
	cliName := args[0]

	if len(args) == 2 && (args[1] == "-version" || args[1] == "-v") {
		args = []string{cliName, "version"}
	}

	// No subcommand defaults to 'server'.
	if len(args) == 1 {
		args = append(args, "server")
	}

	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	c := &cli.CLI{
		Name:    cliName,
		Args:    args[1:],
		Version: version.Version,
		Commands: map[string]cli.CommandFactory{
			"server": func() (cli.Command, error) {
				return &server.Command{UI: ui}, nil
			},
			"migrate": func() (cli.Command, error) {
				return &migrate.Command{UI: ui}, nil
			},
			"ingest": func() (cli.Command, error) {
				return &ingestcmd.Command{UI: ui}, nil
			},
		},
	}

	exitCode, err := c.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	return exitCode
}
