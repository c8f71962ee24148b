package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

type statusView struct {
	LoggedIn    bool       `json:"logged_in"`
	DisplayName string     `json:"display_name,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

func (c *cli) status() statusView {
	st := c.app.Session.State()
	v := statusView{LoggedIn: st.LoggedIn, DisplayName: st.DisplayName, LastError: st.LastError}
	if !st.ExpiresAt.IsZero() {
		exp := st.ExpiresAt.UTC()
		v.ExpiresAt = &exp
	}
	return v
}

func (c *cli) loginCmd() *cobra.Command {
	var user, pass string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" || pass == "" {
				return errors.New("need -u and -p")
			}
			if err := c.app.Session.Login(c.ctx, user, pass); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), c.status())
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "username")
	cmd.Flags().StringVarP(&pass, "password", "p", "", "password")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out; the local session is dropped even if the server call fails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := c.app.Session.Logout(c.ctx)
			printJSON(cmd.OutOrStdout(), c.status())
			return err
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printJSON(cmd.OutOrStdout(), c.status())
		},
	}
}
