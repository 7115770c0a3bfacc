package version

import (
	"fmt"

	"github.com/encapsia/encapsia-go/internal/cmd/base"
	"github.com/encapsia/encapsia-go/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the CLI version"
}

func (c *Command) Help() string {
	return `Usage: encapsia version

  This command prints the CLI version.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output(fmt.Sprintf("encapsia %s", version.Version))
	return 0
}
