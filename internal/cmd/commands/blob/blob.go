// Package blob implements the `encapsia blob` subcommands for streaming
// uploads and downloads.
package blob

import (
	"context"
	"flag"
	"fmt"

	"github.com/mitchellh/cli"

	"github.com/encapsia/encapsia-go/internal/cmd/base"
	"github.com/encapsia/encapsia-go/pkg/encapsia"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Upload and download blobs"
}

func (c *Command) Help() string {
	return `Usage: encapsia blob <subcommand> [options] [args]

  This command groups subcommands for working with blobs.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}

type UploadCommand struct {
	*base.Command

	flagHost string
	flagMime string
	flagZone string
}

func (c *UploadCommand) Synopsis() string {
	return "Upload a file as a new blob"
}

func (c *UploadCommand) Help() string {
	return `Usage: encapsia blob upload <file>

  This command uploads the given file as a new blob, streaming it
  from disk, and prints the new blob id.` +
		c.Flags().Help()
}

func (c *UploadCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("upload", flag.ExitOnError))

	f.StringVar(
		&c.flagHost, "host", "",
		"Host name or credentials label. Defaults to the ENCAPSIA_URL environment variable.",
	)
	f.StringVar(
		&c.flagMime, "mime-type", "",
		"MIME type of the upload. Guessed from the filename when empty.",
	)
	f.StringVar(
		&c.flagZone, "zone", "",
		"Storage zone for the blob. Uses the server default when empty.",
	)

	return f
}

func (c *UploadCommand) Run(args []string) int {
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if flags.NArg() != 1 {
		c.UI.Error("expected exactly one file argument")
		return 1
	}

	client, err := c.NewClient(c.flagHost)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	blobID, err := client.UploadFileAsBlob(
		context.Background(), flags.Arg(0), c.flagMime,
		&encapsia.UploadOptions{Zone: c.flagZone},
	)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	c.UI.Output(blobID)
	return 0
}

type DownloadCommand struct {
	*base.Command

	flagHost string
	flagOut  string
}

func (c *DownloadCommand) Synopsis() string {
	return "Download a blob to a file"
}

func (c *DownloadCommand) Help() string {
	return `Usage: encapsia blob download <blob-id>

  This command streams a blob to a local file. The file is named
  after the blob id unless -out is given.` +
		c.Flags().Help()
}

func (c *DownloadCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("download", flag.ExitOnError))

	f.StringVar(
		&c.flagHost, "host", "",
		"Host name or credentials label. Defaults to the ENCAPSIA_URL environment variable.",
	)
	f.StringVar(
		&c.flagOut, "out", "",
		"Target filename. Defaults to the blob id.",
	)

	return f
}

func (c *DownloadCommand) Run(args []string) int {
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if flags.NArg() != 1 {
		c.UI.Error("expected exactly one blob id argument")
		return 1
	}

	client, err := c.NewClient(c.flagHost)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	blobID := flags.Arg(0)
	target := c.flagOut
	if target == "" {
		target = blobID
	}

	found, err := client.DownloadBlobToFile(context.Background(), blobID, target)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	if !found {
		c.UI.Error(fmt.Sprintf("blob %s not found", blobID))
		return 1
	}

	c.UI.Output(target)
	return 0
}
