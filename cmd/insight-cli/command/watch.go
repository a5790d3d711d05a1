package command

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gitlab-insight/cmd/insight-cli/command/client"
	"gitlab-insight/internal/config"
	"gitlab-insight/internal/dashboard"
	"gitlab-insight/pkg/realtime"
)

// watch.go streams live updates into the dashboard widgets and prints them.

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch project, pipeline and merge request updates live",
	Long: `Connects to the live-update endpoint and prints every update as it arrives.
While watching, type a letter and press enter:
  b  show the pipeline board
  i  show the notification inbox
  r  reconnect now
  q  quit`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("once", false, "exit after the first update")
}

func runWatch(cmd *cobra.Command, args []string) error {
	once, _ := cmd.Flags().GetBool("once")

	tok, err := resolveToken()
	if err != nil {
		return err
	}

	logger := config.NewLogger(cmd.ErrOrStderr(), clientCfg.LogFormat, clientCfg.LogLevel)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := realtime.NewChannel(realtime.ChannelOptions{
		Options:         realtime.Options{Policy: clientCfg.Policy(), Logger: logger},
		ReleaseWhenIdle: true,
	})
	defer ch.Close()

	p := newPrinter(cmd.OutOrStdout())
	d := dashboard.New()

	first := make(chan struct{})
	var firstOnce sync.Once
	d.Feed.OnEvent = func(ev dashboard.FeedEvent) {
		p.Event(ev)
		firstOnce.Do(func() { close(first) })
	}
	d.Banner.OnNotice = p.Notice

	// inbox starts from what arrived while we were away
	api := client.NewHTTPClient(apiURL)
	api.SetToken(tok)
	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if unread, err := api.UnreadNotifications(loadCtx); err != nil {
		logger.Warn("Could not load unread notifications", "error", err)
	} else {
		d.Inbox.Load(unread.Notifications)
	}
	cancel()

	// banner first so it sees the initial connect
	d.Banner.Attach(ch)
	session, err := ch.Acquire(wsURL, tok)
	if err != nil {
		d.Banner.Detach()
		return err
	}
	d.Mount(session, nil)
	defer func() {
		d.Unmount()
		session.Release()
	}()

	var done <-chan struct{}
	if once {
		done = first
	}
	return promptLoop(ctx, cmd.InOrStdin(), done, func(input string) bool {
		switch input {
		case "b":
			p.Print(renderBoard(d.Board.Snapshot()))
		case "i":
			p.Print(renderInbox(d.Inbox.Snapshot(), time.Now()))
		case "r":
			if err := ch.Reconnect(); err != nil {
				logger.Warn("Reconnect failed", "error", err)
			}
		case "q":
			return false
		}
		return true
	})
}

// promptLoop feeds trimmed input lines to handle until it returns false,
// ctx is done or done is closed. A closed input keeps the loop waiting.
func promptLoop(ctx context.Context, in io.Reader, done <-chan struct{}, handle func(string) bool) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if line != "" && !handle(line) {
				return nil
			}
		}
	}
}
