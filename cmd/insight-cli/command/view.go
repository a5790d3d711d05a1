package command

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"gitlab-insight/internal/dashboard"
	"gitlab-insight/internal/shared"
	"gitlab-insight/pkg/realtime"
)

// view.go renders dashboard state for the terminal.

var typeColors = map[string]*color.Color{
	realtime.TypeProjectUpdate:      color.New(color.FgCyan),
	realtime.TypePipelineUpdate:     color.New(color.FgBlue),
	realtime.TypeMergeRequestUpdate: color.New(color.FgMagenta),
	realtime.TypeNotification:       color.New(color.FgYellow, color.Bold),
}

var noticeColors = map[string]*color.Color{
	dashboard.LevelSuccess: color.New(color.FgGreen),
	dashboard.LevelInfo:    color.New(color.FgWhite),
	dashboard.LevelWarning: color.New(color.FgYellow),
	dashboard.LevelError:   color.New(color.FgRed, color.Bold),
}

var (
	boardHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	boardCell   = lipgloss.NewStyle().Padding(0, 1)
)

// printer serializes output from the connection's read goroutine and the prompt loop
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

// Event prints one live feed entry
func (p *printer) Event(ev dashboard.FeedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := typeColors[ev.Type]
	if !ok {
		c = color.New(color.Reset)
	}
	fmt.Fprintf(p.out, "%s %s %s\n",
		ev.ReceivedAt.Format("15:04:05"),
		c.Sprintf("%-21s", ev.Type),
		ev.Summary,
	)
}

// Notice prints connection banner changes
func (p *printer) Notice(n dashboard.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := noticeColors[n.Level]
	if !ok {
		c = noticeColors[dashboard.LevelInfo]
	}
	msg := n.Message
	if n.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d)", msg, n.Attempt)
	}
	c.Fprintf(p.out, "● %s\n", msg)
	if n.Persistent {
		fmt.Fprintln(p.out, "  type r + enter to reconnect")
	}
}

// Print writes a pre-rendered block
func (p *printer) Print(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

// renderBoard draws the pipeline board as a table
func renderBoard(rows []dashboard.ProjectStatus) string {
	if len(rows) == 0 {
		return "no project activity yet"
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("PROJECT", "STATUS", "PIPELINE", "REF", "OPEN MRS", "MERGED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return boardHeader
			}
			return boardCell
		})

	for _, r := range rows {
		name := r.Name
		if name == "" {
			name = "#" + strconv.FormatInt(r.ProjectID, 10)
		}
		pipeline := "-"
		if r.PipelineID > 0 {
			pipeline = fmt.Sprintf("#%d %s", r.PipelineID, r.PipelineStatus)
		}
		t.Row(name, orDash(r.Status), pipeline, orDash(r.PipelineRef),
			strconv.Itoa(r.OpenMRs), strconv.Itoa(r.MergedMRs))
	}
	return t.String()
}

// renderInbox lists notifications with their age relative to now
func renderInbox(items []shared.Notification, now time.Time) string {
	if len(items) == 0 {
		return "inbox is empty"
	}

	var b strings.Builder
	for _, n := range items {
		mark := "•"
		if n.Read {
			mark = " "
		}
		age := "just now"
		if !n.Timestamp.IsZero() {
			age = humanize.RelTime(n.Timestamp, now, "ago", "from now")
		}
		fmt.Fprintf(&b, "%s [%s] %-6s %s (%s)\n", mark, n.ID, orDash(n.Priority), n.Message, age)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
