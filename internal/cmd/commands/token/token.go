// Package token implements the `encapsia token` subcommands for session
// token lifetime management.
package token

import (
	"context"
	"flag"
	"fmt"

	"github.com/mitchellh/cli"

	"github.com/encapsia/encapsia-go/internal/cmd/base"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Manage the current session token"
}

func (c *Command) Help() string {
	return `Usage: encapsia token <subcommand> [options]

  This command groups subcommands for managing the session token.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}

type ExtendCommand struct {
	*base.Command

	flagHost     string
	flagLifespan int
}

func (c *ExtendCommand) Synopsis() string {
	return "Extend the current token's lifetime"
}

func (c *ExtendCommand) Help() string {
	return `Usage: encapsia token extend

  This command asks the server for a fresh token with an extended
  lifetime and prints it.` +
		c.Flags().Help()
}

func (c *ExtendCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("extend", flag.ExitOnError))

	f.StringVar(
		&c.flagHost, "host", "",
		"Host name or credentials label. Defaults to the ENCAPSIA_URL environment variable.",
	)
	f.IntVar(
		&c.flagLifespan, "lifespan", 3600,
		"Requested token lifetime in seconds.",
	)

	return f
}

func (c *ExtendCommand) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	client, err := c.NewClient(c.flagHost)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	token, err := client.LoginExtend(context.Background(), c.flagLifespan)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	c.UI.Output(token)
	return 0
}

type LogoutCommand struct {
	*base.Command

	flagHost string
}

func (c *LogoutCommand) Synopsis() string {
	return "Invalidate the current token"
}

func (c *LogoutCommand) Help() string {
	return `Usage: encapsia token logout

  This command invalidates the current token on the server.` +
		c.Flags().Help()
}

func (c *LogoutCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("logout", flag.ExitOnError))

	f.StringVar(
		&c.flagHost, "host", "",
		"Host name or credentials label. Defaults to the ENCAPSIA_URL environment variable.",
	)

	return f
}

func (c *LogoutCommand) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	client, err := c.NewClient(c.flagHost)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	if err := client.Logout(context.Background()); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	return 0
}
