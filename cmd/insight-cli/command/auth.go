package command

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gitlab-insight/cmd/insight-cli/authentication"
	"gitlab-insight/cmd/insight-cli/command/client"
	"gitlab-insight/internal/microservices/http-api/dto"
)

// auth.go handles the account commands: register, login and logout.

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new GitLab Insight account",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req dto.RegisterRequest
		req.Username, _ = cmd.Flags().GetString("username")
		req.Password, _ = cmd.Flags().GetString("password")
		req.Email, _ = cmd.Flags().GetString("email")

		api := client.NewHTTPClient(apiURL)
		response, err := api.Register(cmd.Context(), &req)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}

		color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ Registration successful! Please login to continue.")
		fmt.Fprintf(cmd.OutOrStdout(), "UserID: %s\n", response.UserID)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req dto.LoginRequest
		req.Username, _ = cmd.Flags().GetString("username")
		req.Password, _ = cmd.Flags().GetString("password")
		printToken, _ := cmd.Flags().GetBool("print")

		api := client.NewHTTPClient(apiURL)
		response, err := api.Login(cmd.Context(), &req)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		out := cmd.OutOrStdout()
		creds := &authentication.StoredCredentials{
			AccessToken: response.AccessToken,
			UserID:      response.UserID,
			Username:    response.Username,
			Role:        response.Role,
			ExpiresAt:   time.Now().Add(time.Duration(response.ExpiresIn) * time.Second).Unix(),
		}
		if err := authentication.StoreTokens(creds); err != nil {
			// headless hosts often have no keyring; the token still works with --token
			color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "! Could not save token to the keyring: %v\n", err)
			printToken = true
		}

		color.New(color.FgGreen).Fprintf(out, "✓ Logged in as %s (%s)\n", response.Username, response.Role)
		if printToken {
			fmt.Fprintln(out, response.AccessToken)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := authentication.DeleteTokens(); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ Successfully logged out.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd)

	registerCmd.Flags().StringP("username", "u", "", "Username for the new account")
	registerCmd.Flags().StringP("password", "p", "", "Password for the new account")
	registerCmd.Flags().StringP("email", "e", "", "Email address for the new account")
	registerCmd.MarkFlagRequired("username")
	registerCmd.MarkFlagRequired("password")
	registerCmd.MarkFlagRequired("email")

	loginCmd.Flags().StringP("username", "u", "", "Username for the account")
	loginCmd.Flags().StringP("password", "p", "", "Password for the account")
	loginCmd.Flags().Bool("print", false, "also print the access token")
	loginCmd.MarkFlagRequired("username")
	loginCmd.MarkFlagRequired("password")
}
