package main

import (
	"fmt"
	"text/tabwriter"

	"datacatalog/pkg/apitoken"
	"datacatalog/pkg/store"

	"github.com/spf13/cobra"
)

func (a *app) tokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}

	cmd.AddCommand(a.tokenCreateCommand())
	cmd.AddCommand(a.tokenRevokeCommand())
	cmd.AddCommand(a.tokenListCommand())

	return cmd
}

func (a *app) tokenCreateCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create USER",
		Short: "Issue an API token for a user and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(sess *store.Session) error {
				u, err := resolveUser(cmd, sess, args[0])
				if err != nil {
					return err
				}
				tok, err := apitoken.New(sess, a.cfg).Create(cmd.Context(), u.ID, name, true)
				if err != nil {
					return err
				}
				loggerFromContext(cmd.Context()).Info("Created API token", "user", u.Name, "name", tok.Name)
				fmt.Fprintln(cmd.OutOrStdout(), tok.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "token label (default \""+apitoken.DefaultName+"\")")

	return cmd
}

func (a *app) tokenRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke TOKEN",
		Short: "Revoke an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(sess *store.Session) error {
				ok, err := apitoken.New(sess, a.cfg).Revoke(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("token not found")
				}
				loggerFromContext(cmd.Context()).Info("Revoked API token")
				return nil
			})
		},
	}
}

func (a *app) tokenListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list USER",
		Short: "List a user's API tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(sess *store.Session) error {
				u, err := resolveUser(cmd, sess, args[0])
				if err != nil {
					return err
				}
				tokens, err := apitoken.New(sess, a.cfg).ListForUser(cmd.Context(), u.ID)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tCREATED\tLAST ACCESS")
				for _, t := range tokens {
					last := "never"
					if t.LastAccess != nil {
						last = t.LastAccess.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.CreatedAt.Format("2006-01-02 15:04:05"), last)
				}
				return tw.Flush()
			})
		},
	}
}
