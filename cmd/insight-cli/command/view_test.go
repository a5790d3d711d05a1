package command

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab-insight/internal/dashboard"
	"gitlab-insight/internal/shared"
	"gitlab-insight/pkg/realtime"
)

func init() {
	color.NoColor = true
}

func TestPrinter_Event(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)

	p.Event(dashboard.FeedEvent{
		Type:       realtime.TypePipelineUpdate,
		Summary:    "pipeline #7 of project 12: failed",
		ReceivedAt: time.Date(2024, 5, 1, 9, 30, 5, 0, time.UTC),
	})

	assert.Equal(t, "09:30:05 PIPELINE_UPDATE       pipeline #7 of project 12: failed\n", out.String())
}

func TestPrinter_Notice(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)

	p.Notice(dashboard.Notice{Level: dashboard.LevelWarning, Message: dashboard.MsgReconnecting, Attempt: 2})
	p.Notice(dashboard.Notice{Level: dashboard.LevelError, Message: dashboard.MsgUnavailable, Persistent: true})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "● "+dashboard.MsgReconnecting+" (attempt 2)", lines[0])
	assert.Equal(t, "● "+dashboard.MsgUnavailable, lines[1])
	assert.Contains(t, lines[2], "reconnect")
}

func TestRenderBoard(t *testing.T) {
	assert.Equal(t, "no project activity yet", renderBoard(nil))

	out := renderBoard([]dashboard.ProjectStatus{
		{ProjectID: 12, Name: "group/api", Status: "active", PipelineID: 7, PipelineRef: "main", PipelineStatus: "failed", OpenMRs: 3, MergedMRs: 1},
		{ProjectID: 40},
	})

	assert.Contains(t, out, "PROJECT")
	assert.Contains(t, out, "group/api")
	assert.Contains(t, out, "#7 failed")
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "#40")
}

func TestRenderInbox(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "inbox is empty", renderInbox(nil, now))

	out := renderInbox([]shared.Notification{
		{ID: "1", Message: "Pipeline failed", Priority: shared.PriorityHigh, Timestamp: now.Add(-3 * time.Minute)},
		{ID: "2", Message: "Deployed", Read: true},
	}, now)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "• [1] high   Pipeline failed (3 minutes ago)", lines[0])
	assert.Equal(t, "  [2] -      Deployed (just now)", lines[1])
}

func TestPromptLoop(t *testing.T) {
	var seen []string
	err := promptLoop(context.Background(), strings.NewReader("b\n\n  i \nq\nr\n"), nil, func(s string) bool {
		seen = append(seen, s)
		return s != "q"
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"b", "i", "q"}, seen)
}

func TestPromptLoop_StopsOnDoneWithClosedInput(t *testing.T) {
	done := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		result <- promptLoop(context.Background(), strings.NewReader(""), done, func(string) bool { return true })
	}()

	close(done)
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt loop did not stop")
	}
}

func TestBuildPublishRequest(t *testing.T) {
	req, err := buildPublishRequest("pipeline_update", `{"pipeline_id":7}`, "", []string{"u1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, realtime.TypePipelineUpdate, req.Type)
	assert.JSONEq(t, `{"pipeline_id":7}`, string(req.Data))
	assert.Equal(t, []string{"u1"}, req.UserIDs)

	file := filepath.Join(t.TempDir(), "n.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"message":"hi"}`), 0o600))
	req, err = buildPublishRequest("NOTIFICATION", "", file, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`{"message":"hi"}`), req.Data)

	req, err = buildPublishRequest("PROJECT_UPDATE", "", "-", nil, strings.NewReader(`{"name":"x"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x"}`, string(req.Data))

	_, err = buildPublishRequest("PING", "{}", "", nil, nil)
	assert.ErrorContains(t, err, "unknown update type")

	_, err = buildPublishRequest("NOTIFICATION", "{", "", nil, nil)
	assert.ErrorContains(t, err, "JSON")

	_, err = buildPublishRequest("NOTIFICATION", "", "", nil, nil)
	assert.Error(t, err)

	_, err = buildPublishRequest("NOTIFICATION", "{}", file, nil, nil)
	assert.ErrorContains(t, err, "either")
}
