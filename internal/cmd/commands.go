package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/encapsia/encapsia-go/internal/cmd/base"
	"github.com/encapsia/encapsia-go/internal/cmd/commands/blob"
	"github.com/encapsia/encapsia-go/internal/cmd/commands/config"
	"github.com/encapsia/encapsia-go/internal/cmd/commands/token"
	versioncmd "github.com/encapsia/encapsia-go/internal/cmd/commands/version"
	"github.com/encapsia/encapsia-go/internal/cmd/commands/whoami"
)

// Commands is the mapping of all available CLI commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	baseCommand := &base.Command{
		Log: log,
		UI:  ui,
	}

	Commands = map[string]cli.CommandFactory{
		"version": func() (cli.Command, error) {
			return &versioncmd.Command{Command: baseCommand}, nil
		},
		"whoami": func() (cli.Command, error) {
			return &whoami.Command{Command: baseCommand}, nil
		},
		"config": func() (cli.Command, error) {
			return &config.Command{Command: baseCommand}, nil
		},
		"config get": func() (cli.Command, error) {
			return &config.GetCommand{Command: baseCommand}, nil
		},
		"config set": func() (cli.Command, error) {
			return &config.SetCommand{Command: baseCommand}, nil
		},
		"config delete": func() (cli.Command, error) {
			return &config.DeleteCommand{Command: baseCommand}, nil
		},
		"blob": func() (cli.Command, error) {
			return &blob.Command{Command: baseCommand}, nil
		},
		"blob upload": func() (cli.Command, error) {
			return &blob.UploadCommand{Command: baseCommand}, nil
		},
		"blob download": func() (cli.Command, error) {
			return &blob.DownloadCommand{Command: baseCommand}, nil
		},
		"token": func() (cli.Command, error) {
			return &token.Command{Command: baseCommand}, nil
		},
		"token extend": func() (cli.Command, error) {
			return &token.ExtendCommand{Command: baseCommand}, nil
		},
		"token logout": func() (cli.Command, error) {
			return &token.LogoutCommand{Command: baseCommand}, nil
		},
	}
}
