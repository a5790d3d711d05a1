package command

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// inbox.go lists and acknowledges notifications stored for the user.

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List unread notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := apiClient()
		if err != nil {
			return err
		}
		unread, err := api.UnreadNotifications(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderInbox(unread.Notifications, time.Now()))
		return nil
	},
}

var inboxReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark one notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := apiClient()
		if err != nil {
			return err
		}
		if err := api.MarkNotificationRead(cmd.Context(), args[0]); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Notification %s marked as read\n", args[0])
		return nil
	},
}

var inboxReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := apiClient()
		if err != nil {
			return err
		}
		n, err := api.MarkAllNotificationsRead(cmd.Context())
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ %d notifications marked as read\n", n)
		return nil
	},
}

func init() {
	inboxCmd.AddCommand(inboxReadCmd, inboxReadAllCmd)
	rootCmd.AddCommand(inboxCmd)
}
