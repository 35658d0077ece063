package main

import (
	"errors"
	"fmt"

	"datacatalog/pkg/model"
	"datacatalog/pkg/store"

	"github.com/spf13/cobra"
)

func (a *app) userCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage catalog users",
	}

	cmd.AddCommand(a.userAddCommand())

	return cmd
}

func (a *app) userAddCommand() *cobra.Command {
	var (
		email    string
		fullname string
		sysadmin bool
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := &model.User{Name: args[0], Sysadmin: sysadmin}
			if email != "" {
				u.Email = &email
			}
			if fullname != "" {
				u.Fullname = &fullname
			}

			return a.withSession(cmd.Context(), func(sess *store.Session) error {
				if err := sess.CreateUser(cmd.Context(), u); err != nil {
					return err
				}
				if err := sess.Commit(); err != nil {
					return err
				}
				loggerFromContext(cmd.Context()).Info("Created user", "name", u.Name, "id", u.ID)
				fmt.Fprintln(cmd.OutOrStdout(), u.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&fullname, "fullname", "", "display name")
	cmd.Flags().BoolVar(&sysadmin, "sysadmin", false, "grant sysadmin")

	return cmd
}

// resolveUser accepts a user id or name.
func resolveUser(cmd *cobra.Command, sess *store.Session, ref string) (*model.User, error) {
	u, err := sess.GetUser(cmd.Context(), ref)
	if errors.Is(err, store.ErrNotFound) {
		u, err = sess.UserByName(cmd.Context(), ref)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
