// Package config implements the `encapsia config` subcommands for the
// server's key/value configuration store.
package config

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/mitchellh/cli"

	"github.com/encapsia/encapsia-go/internal/cmd/base"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Read and write server configuration values"
}

func (c *Command) Help() string {
	return `Usage: encapsia config <subcommand> [options] [args]

  This command groups subcommands for the server configuration store.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}

type GetCommand struct {
	*base.Command

	flagHost string
}

func (c *GetCommand) Synopsis() string {
	return "Print a server configuration value"
}

func (c *GetCommand) Help() string {
	return `Usage: encapsia config get <key>

  This command fetches one value from the server configuration
  store and prints it as JSON. Without a key it prints the whole
  store.` +
		c.Flags().Help()
}

func (c *GetCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("get", flag.ExitOnError))

	f.StringVar(
		&c.flagHost, "host", "",
		"Host name or credentials label. Defaults to the ENCAPSIA_URL environment variable.",
	)

	return f
}

func (c *GetCommand) Run(args []string) int {
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	client, err := c.NewClient(c.flagHost)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	ctx := context.Background()
	var value any
	switch flags.NArg() {
	case 0:
		value, err = client.AllConfig(ctx)
	case 1:
		value, err = client.GetConfig(ctx, flags.Arg(0))
	default:
		c.UI.Error("expected at most one key argument")
		return 1
	}
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	out, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.UI.Output(string(out))
	return 0
}

type SetCommand struct {
	*base.Command

	flagHost string
}

func (c *SetCommand) Synopsis() string {
	return "Set a server configuration value"
}

func (c *SetCommand) Help() string {
	return `Usage: encapsia config set <key> <value>

  This command stores one value in the server configuration store.
  The value is parsed as JSON when possible and stored as a plain
  string otherwise.` +
		c.Flags().Help()
}

func (c *SetCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("set", flag.ExitOnError))

	f.StringVar(
		&c.flagHost, "host", "",
		"Host name or credentials label. Defaults to the ENCAPSIA_URL environment variable.",
	)

	return f
}

func (c *SetCommand) Run(args []string) int {
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if flags.NArg() != 2 {
		c.UI.Error("expected a key and a value argument")
		return 1
	}

	client, err := c.NewClient(c.flagHost)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	key, raw := flags.Arg(0), flags.Arg(1)
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	if err := client.SetConfig(context.Background(), key, value); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	return 0
}

type DeleteCommand struct {
	*base.Command

	flagHost string
}

func (c *DeleteCommand) Synopsis() string {
	return "Delete a server configuration value"
}

func (c *DeleteCommand) Help() string {
	return `Usage: encapsia config delete <key>

  This command removes one value from the server configuration store.` +
		c.Flags().Help()
}

func (c *DeleteCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("delete", flag.ExitOnError))

	f.StringVar(
		&c.flagHost, "host", "",
		"Host name or credentials label. Defaults to the ENCAPSIA_URL environment variable.",
	)

	return f
}

func (c *DeleteCommand) Run(args []string) int {
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if flags.NArg() != 1 {
		c.UI.Error("expected exactly one key argument")
		return 1
	}

	client, err := c.NewClient(c.flagHost)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	if err := client.DeleteConfig(context.Background(), flags.Arg(0)); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	return 0
}
