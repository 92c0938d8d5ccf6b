package cmd

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/pdf-extractor/backend/internal/cmd/base"
	"github.com/pdf-extractor/backend/internal/cmd/commands/check"
	"github.com/pdf-extractor/backend/internal/cmd/commands/serve"
	"github.com/pdf-extractor/backend/internal/version"
)

func commands(log hclog.Logger, ui cli.Ui) map[string]cli.CommandFactory {
	b := base.NewCommand(log, ui)

	return map[string]cli.CommandFactory{
		"serve": func() (cli.Command, error) {
			return &serve.Command{Command: b}, nil
		},
		"check": func() (cli.Command, error) {
			return &check.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &versionCommand{Command: b}, nil
		},
	}
}

type versionCommand struct {
	*base.Command
}

func (c *versionCommand) Synopsis() string { return "Print the version" }

func (c *versionCommand) Help() string { return "Usage: pdfextract version" }

func (c *versionCommand) Run([]string) int {
	c.UI.Output(fmt.Sprintf("pdfextract %s (built %s)", version.Version, version.BuildTime))
	return 0
}
