package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newTokenCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue credentials",
	}
	cmd.AddCommand(newTokenIssueCommand(a))
	return cmd
}

func newTokenIssueCommand(a *app) *cobra.Command {
	var userID, username string
	var refresh bool

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Print a signed access (or refresh) token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := a.tokens()
			if err != nil {
				return err
			}
			if userID == "" {
				userID = uuid.NewString()
			} else if _, err := uuid.Parse(userID); err != nil {
				return fmt.Errorf("user id %q: %w", userID, err)
			}

			issue := tokens.IssueAccess
			if refresh {
				issue = tokens.IssueRefresh
			}
			token, err := issue(userID, username)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "user_id: %s\ntoken: %s\n", userID, token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id (uuid); generated when empty")
	cmd.Flags().StringVar(&username, "username", "", "username carried in the token")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "issue a refresh token instead of an access token")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
