package main

import (
	"context"
	"fmt"

	"github.com/dukex/flowdesk/pkg/services"
	"github.com/dukex/flowdesk/pkg/templatefile"
	cli "github.com/urfave/cli/v3"
)

func NewTemplateCommand() *cli.Command {
	return &cli.Command{
		Name:  "template",
		Usage: "Manage workflow templates",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import a template from a JSON document",
				ArgsUsage: "<file>",
				Flags:     actingUserFlags,
				Action:    withApp("template", importTemplate),
			},
			{
				Name:      "activate",
				Usage:     "Activate or deactivate a template",
				ArgsUsage: "<template-id>",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{Name: "off", Usage: "Deactivate instead"},
				}, actingUserFlags...),
				Action: withApp("template", activateTemplate),
			},
		},
	}
}

func importTemplate(ctx context.Context, command *cli.Command, a *app) error {
	if command.Args().Len() != 1 {
		return fmt.Errorf("expected one template file, got %d arguments", command.Args().Len())
	}

	tpl, err := templatefile.Load(command.Args().First())
	if err != nil {
		return err
	}

	rc, err := a.requestContext(ctx, command)
	if err != nil {
		return err
	}

	tpl.AccountID = rc.User.AccountID

	saved, err := services.NewTemplates(a.deps).Save(ctx, rc, tpl)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "Template imported", "template_id", saved.ID, "tasks", len(saved.Tasks))

	return printJSON(command.Root().Writer, saved)
}

func activateTemplate(ctx context.Context, command *cli.Command, a *app) error {
	templateID, err := int64Arg(command, "template-id")
	if err != nil {
		return err
	}

	rc, err := a.requestContext(ctx, command)
	if err != nil {
		return err
	}

	tpl, err := services.NewTemplates(a.deps).Activate(ctx, rc, templateID, !command.Bool("off"))
	if err != nil {
		return err
	}

	return printJSON(command.Root().Writer, tpl)
}
