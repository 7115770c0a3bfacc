package whoami

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/encapsia/encapsia-go/internal/cmd/base"
)

type Command struct {
	*base.Command

	flagHost string
}

func (c *Command) Synopsis() string {
	return "Show the user behind the current token"
}

func (c *Command) Help() string {
	return `Usage: encapsia whoami

  This command asks the server which user the configured token
  belongs to and prints the reply.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("whoami", flag.ExitOnError))

	f.StringVar(
		&c.flagHost, "host", "",
		"Host name or credentials label. Defaults to the ENCAPSIA_URL environment variable.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	client, err := c.NewClient(c.flagHost)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	identity, err := client.WhoAmI(context.Background())
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	out, err := json.MarshalIndent(identity, "", "    ")
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.UI.Output(string(out))
	return 0
}
