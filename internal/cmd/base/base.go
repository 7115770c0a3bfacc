// Package base carries what every CLI command needs: a logger, a UI and
// helpers for flag handling and client construction.
package base

import (
	"bytes"
	"flag"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/encapsia/encapsia-go/pkg/credentials"
	"github.com/encapsia/encapsia-go/pkg/encapsia"
)

// Command is embedded by all CLI commands.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui
}

// NewClient resolves hostOrLabel through the credentials store and the
// ENCAPSIA_URL/ENCAPSIA_TOKEN environment variables and returns a ready
// API client.
func (c *Command) NewClient(hostOrLabel string) (*encapsia.Client, error) {
	host, token, err := credentials.Discover(hostOrLabel)
	if err != nil {
		return nil, err
	}
	return encapsia.New(encapsia.Config{
		BaseURL: host,
		Token:   token,
		Logger:  c.Log,
	})
}

// FlagSet wraps flag.FlagSet so command help can include the rendered
// flag defaults.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet wraps the given flag set.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	return &FlagSet{FlagSet: f}
}

// Help renders the flag defaults as a help text section.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer
	f.SetOutput(&buf)
	f.PrintDefaults()
	return fmt.Sprintf("\n\nOptions:\n\n%s", buf.String())
}
