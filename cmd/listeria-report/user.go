package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/listeria.report/internal/auth"
	"github.com/banshee-data/listeria.report/internal/db"
)

func userCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard accounts",
	}

	var update bool
	add := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create an account, reading the password from the first line of stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			if username == "" {
				return errors.New("username must not be empty")
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no password given on stdin")
			}
			hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return fmt.Errorf("password rejected: %w", err)
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			ctx := cmd.Context()
			_, err = database.CreateUser(ctx, username, hash)
			switch {
			case errors.Is(err, db.ErrUserExists) && update:
				if err := database.SetPassword(ctx, username, hash); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated password for %s\n", username)
				return nil
			case errors.Is(err, db.ErrUserExists):
				return fmt.Errorf("user %q already exists, pass --update to change the password", username)
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s\n", username)
			return nil
		},
	}
	add.Flags().BoolVar(&update, "update", false, "Replace the password when the user exists")

	cmd.AddCommand(add)
	return cmd
}
