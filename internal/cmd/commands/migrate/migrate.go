// Package migrate implements the `acervo migrate` command.
package migrate

import (
	"flag"

	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/acervo-ai/acervo/internal/config"
	"github.com/acervo-ai/acervo/internal/setup"
	"github.com/acervo-ai/acervo/pkg/database"
)

// Command runs the database migrations and exits.
type Command struct {
	UI cli.Ui

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Run database migrations"
}

func (c *Command) Help() string {
	return `Usage: acervo migrate -config=config.yaml

  Creates the pgvector extension, the schema, and the search indexes, then
  exits. The server command also migrates on startup; this command exists
  for deployments that separate migration from serving.
`
}

func (c *Command) flags() *flag.FlagSet {
	f := flag.NewFlagSet("migrate", flag.ContinueOnError)
	f.StringVar(&c.flagConfig, "config", "config.yaml", "Path to the YAML config file")
	return f
}

func (c *Command) Run(args []string) int {
	if err := c.flags().Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(afero.NewOsFs(), c.flagConfig)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	log := setup.Logger(cfg.Log, "acervo")

	db, err := database.Connect(cfg.Database.ToDatabaseConfig(), log)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	if err := database.Migrate(db, cfg.Database.ToDatabaseConfig(), log); err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	c.UI.Output("migrations applied")
	return 0
}
