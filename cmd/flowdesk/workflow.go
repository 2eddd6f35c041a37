package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dukex/flowdesk/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func NewWorkflowCommand() *cli.Command {
	return &cli.Command{
		Name:  "workflow",
		Usage: "Run workflows and complete their tasks",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Start a workflow from a template",
				Flags: append([]cli.Flag{
					&cli.Int64Flag{Name: "template-id", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Workflow name, rendered from the template when empty"},
					&cli.StringFlag{Name: "kickoff", Usage: "Kickoff values as a JSON object", Value: "{}"},
					&cli.BoolFlag{Name: "urgent"},
				}, actingUserFlags...),
				Action: withApp("workflow_run", runWorkflow),
			},
			{
				Name:      "complete",
				Usage:     "Complete a task for the acting user",
				ArgsUsage: "<task-id>",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "outputs", Usage: "Task output values as a JSON object", Value: "{}"},
				}, actingUserFlags...),
				Action: withApp("workflow_run", completeTask),
			},
		},
	}
}

func runWorkflow(ctx context.Context, command *cli.Command, a *app) error {
	kickoff, err := parseValues(command.String("kickoff"))
	if err != nil {
		return fmt.Errorf("invalid kickoff: %w", err)
	}

	rc, err := a.requestContext(ctx, command)
	if err != nil {
		return err
	}

	workflow, err := services.NewWorkflowRun(a.deps).Run(ctx, rc, services.RunRequest{
		TemplateID: command.Int64("template-id"),
		Kickoff:    kickoff,
		Name:       command.String("name"),
		IsUrgent:   command.Bool("urgent"),
	})
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "Workflow started", "workflow_id", workflow.ID, "name", workflow.Name)

	return printJSON(command.Root().Writer, workflow)
}

func completeTask(ctx context.Context, command *cli.Command, a *app) error {
	taskID, err := int64Arg(command, "task-id")
	if err != nil {
		return err
	}

	outputs, err := parseValues(command.String("outputs"))
	if err != nil {
		return fmt.Errorf("invalid outputs: %w", err)
	}

	rc, err := a.requestContext(ctx, command)
	if err != nil {
		return err
	}

	task, err := services.NewWorkflowRun(a.deps).CompleteTask(ctx, rc, taskID, outputs)
	if err != nil {
		return err
	}

	return printJSON(command.Root().Writer, task)
}

// parseValues decodes a JSON object of field values. Numbers stay json.Number so the
// field coercion decides their type.
func parseValues(raw string) (map[string]any, error) {
	values := map[string]any{}
	if raw == "" {
		return values, nil
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()

	if err := decoder.Decode(&values); err != nil {
		return nil, err
	}

	return values, nil
}

func int64Arg(command *cli.Command, name string) (int64, error) {
	if command.Args().Len() != 1 {
		return 0, fmt.Errorf("expected <%s>", name)
	}

	id, err := strconv.ParseInt(command.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, command.Args().First(), err)
	}

	return id, nil
}
