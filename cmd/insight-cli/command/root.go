package command

// root.go defines the root command of the insight CLI and its global flags.

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"gitlab-insight/cmd/insight-cli/authentication"
	"gitlab-insight/cmd/insight-cli/command/client"
	"gitlab-insight/internal/config"
)

var (
	apiURL string // API server URL, API_URL when empty
	wsURL  string // push endpoint URL, WEBSOCKET_URL when empty
	token  string // access token (jwt), keyring when empty

	clientCfg *config.ClientConfig
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "insight",
	Short: "insight - GitLab Insight command line client",
	Long: `insight talks to the GitLab Insight api-server. User can use this application to:
- Log in and keep the access token in the OS keyring
- Watch project, pipeline and merge request updates live
- Read and acknowledge notifications
- Publish updates (admin role)

Use "insight [command] --help" to see all available commands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClientConfig()
		if err != nil {
			return err
		}
		if apiURL == "" {
			apiURL = cfg.APIURL
		}
		if wsURL == "" {
			wsURL = cfg.WebsocketURL
		} else {
			cfg.WebsocketURL = wsURL
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		clientCfg = cfg
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API server URL (default $API_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&wsURL, "ws", "", "live-update endpoint (default $WEBSOCKET_URL or ws://localhost:8080/ws)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "access token; defaults to the one saved by `insight login`")
}

// resolveToken prefers --token over the keyring
func resolveToken() (string, error) {
	if token != "" {
		return token, nil
	}
	creds, err := authentication.GetTokens()
	if err != nil {
		return "", err
	}
	if creds.Expired(time.Now()) {
		return "", fmt.Errorf("session of %s expired: run `insight login` again", creds.Username)
	}
	return creds.AccessToken, nil
}

// apiClient returns an HTTP client carrying the resolved access token
func apiClient() (*client.HTTPClient, error) {
	c := client.NewHTTPClient(apiURL)
	tok, err := resolveToken()
	if err != nil {
		return nil, err
	}
	c.SetToken(tok)
	return c, nil
}
