package main

import (
	"context"
	"fmt"

	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
)

func NewUserCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage account members",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a member to an account",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "account-id", Required: true, Sources: cli.EnvVars("FLOWDESK_ACCOUNT_ID")},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "first-name"},
					&cli.StringFlag{Name: "last-name"},
					&cli.BoolFlag{Name: "owner", Usage: "Make the user the account owner"},
					&cli.BoolFlag{Name: "admin"},
				},
				Action: withApp("user", addUser),
			},
		},
	}
}

func addUser(ctx context.Context, command *cli.Command, a *app) error {
	user := &models.User{
		AccountID:      command.Int64("account-id"),
		Email:          command.String("email"),
		FirstName:      command.String("first-name"),
		LastName:       command.String("last-name"),
		Type:           models.UserTypeUser,
		Status:         models.UserStatusActive,
		IsAccountOwner: command.Bool("owner"),
		IsAdmin:        command.Bool("admin"),
		IsSubscribed:   true,
	}

	if err := validator.New().Struct(user); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	err := a.persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		return tx.Users().Save(ctx, user)
	})
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "User added", "user_id", user.ID, "account_id", user.AccountID)

	return printJSON(command.Root().Writer, user)
}
