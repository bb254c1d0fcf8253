package commands

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/beacon/internal/app"
	"github.com/dotcommander/beacon/internal/envelope"
	"github.com/dotcommander/beacon/internal/hookenv"
	"github.com/dotcommander/beacon/internal/models"
	"github.com/dotcommander/beacon/internal/store"
)

// hookTestServer records every envelope POSTed to it.
type hookTestServer struct {
	*httptest.Server
	requests atomic.Int64
	lastBody atomic.Value
	lastURL  atomic.Value
}

func newHookTestServer(t *testing.T) *hookTestServer {
	t.Helper()
	ts := &hookTestServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		var env envelope.Envelope
		_ = json.NewDecoder(r.Body).Decode(&env)
		ts.lastBody.Store(env)
		ts.lastURL.Store(r.URL.String())
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *hookTestServer) lastEnvelope() envelope.Envelope {
	env, _ := ts.lastBody.Load().(envelope.Envelope)
	return env
}

func setupHookEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv(hookenv.SessionIDEnv, "")
	t.Setenv(hookenv.ObservabilityServerURLEnv, "")
	t.Setenv("BEACON_JOURNAL_PATH", filepath.Join(dir, "journal.db"))
	return dir
}

func TestReadHookStdin(t *testing.T) {
	input, raw, ok := readHookStdin(strings.NewReader(`{"session_id":"s1","tool_name":"Bash"}`))
	require.True(t, ok)
	require.Equal(t, "s1", input.SessionID)
	require.Equal(t, "Bash", input.ToolName)
	require.JSONEq(t, `{"session_id":"s1","tool_name":"Bash"}`, string(raw))

	// Malformed input keeps the raw bytes for diagnostics but reports not-ok.
	input, raw, ok = readHookStdin(strings.NewReader("not json"))
	require.False(t, ok)
	require.Equal(t, "not json", string(raw))
	require.Empty(t, input.SessionID)
}

func TestBashCommand(t *testing.T) {
	require.Equal(t, "rm -rf /tmp/x", bashCommand(hookInput{
		ToolName:  "Bash",
		ToolInput: json.RawMessage(`{"command":"rm -rf /tmp/x"}`),
	}))
	require.Empty(t, bashCommand(hookInput{
		ToolName:  "Write",
		ToolInput: json.RawMessage(`{"command":"rm -rf /tmp/x"}`),
	}))
	require.Empty(t, bashCommand(hookInput{ToolName: "Bash", ToolInput: json.RawMessage(`"x"`)}))
}

func TestHookSend_RequiresEventType(t *testing.T) {
	setupHookEnv(t)
	cmd := newHookSendCmd()
	cmd.SetIn(strings.NewReader(`{}`))
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	require.EqualError(t, err, "error already printed")
	require.IsType(t, printedError{}, err)
}

func TestHookSend_DeliversEnvelopeAndJournals(t *testing.T) {
	dir := setupHookEnv(t)
	ts := newHookTestServer(t)

	cmd := newHookSendCmd()
	cmd.SetIn(strings.NewReader(`{"session_id":"sess-1","cwd":"` + dir + `"}`))
	cmd.SetArgs([]string{"--event-type", "PreToolUse", "--source-app", "demo-app", "--server-url", ts.URL + "/events"})
	require.NoError(t, cmd.Execute())

	require.EqualValues(t, 1, ts.requests.Load())
	env := ts.lastEnvelope()
	require.Equal(t, "demo-app", env.SourceApp)
	require.Equal(t, "sess-1", env.SessionID)
	require.Equal(t, models.EventPreToolUse, env.HookEventType)
	require.Positive(t, env.Timestamp)

	db, err := store.InitJournalWithPath(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	deliveries, err := store.ListDeliveries(db, store.ListDeliveriesParams{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.True(t, deliveries[0].Delivered)
	require.Equal(t, http.StatusOK, deliveries[0].HTTPStatus)
}

func TestHookSend_MalformedStdinSkipsDelivery(t *testing.T) {
	setupHookEnv(t)
	ts := newHookTestServer(t)

	cmd := newHookSendCmd()
	cmd.SetIn(strings.NewReader("{not json"))
	cmd.SetArgs([]string{"--event-type", "PreToolUse", "--server-url", ts.URL + "/events"})
	require.NoError(t, cmd.Execute())

	require.EqualValues(t, 0, ts.requests.Load())
}

func TestHookSend_UnreachableServerStaysSilent(t *testing.T) {
	dir := setupHookEnv(t)

	cmd := newHookSendCmd()
	cmd.SetIn(strings.NewReader(`{"session_id":"sess-down"}`))
	cmd.SetArgs([]string{"--event-type", "Stop", "--server-url", "http://127.0.0.1:1/events"})
	require.NoError(t, cmd.Execute())

	// The failure is journaled, not surfaced.
	db, err := store.InitJournalWithPath(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	deliveries, err := store.ListDeliveries(db, store.ListDeliveriesParams{SessionID: "sess-down", FailedOnly: true})
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.NotEmpty(t, deliveries[0].Error)
}

func TestHookSend_ConfigGatesIntentFlags(t *testing.T) {
	dir := setupHookEnv(t)
	ts := newHookTestServer(t)

	configPath := filepath.Join(dir, "hooks-config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"source_app": "gated-app",
		"server_url": "`+ts.URL+`/events",
		"features": {"summarize": false, "completion_announcements": true}
	}`), 0o600))

	cmd := newHookSendCmd()
	cmd.SetIn(strings.NewReader(`{"session_id":"sess-2"}`))
	cmd.SetArgs([]string{"--event-type", "Stop", "--config", configPath, "--summarize", "--announce"})
	require.NoError(t, cmd.Execute())

	require.EqualValues(t, 1, ts.requests.Load())
	url, _ := ts.lastURL.Load().(string)
	// The caller asked for both; config only allows the announcement.
	require.NotContains(t, url, "summarize=true")
	require.Contains(t, url, "announce=true")
	require.Equal(t, "gated-app", ts.lastEnvelope().SourceApp)
}

func TestHookSend_EnvOverridesConfiguredURL(t *testing.T) {
	dir := setupHookEnv(t)
	ts := newHookTestServer(t)
	t.Setenv(hookenv.ObservabilityServerURLEnv, ts.URL+"/events")

	configPath := filepath.Join(dir, "hooks-config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"source_app": "env-app",
		"server_url": "http://127.0.0.1:1/events"
	}`), 0o600))

	cmd := newHookSendCmd()
	cmd.SetIn(strings.NewReader(`{"session_id":"sess-env"}`))
	cmd.SetArgs([]string{"--event-type", "Stop", "--config", configPath})
	require.NoError(t, cmd.Execute())

	require.EqualValues(t, 1, ts.requests.Load())
	require.Equal(t, "env-app", ts.lastEnvelope().SourceApp)
}

func TestHookSend_ServerURLFlagBeatsEnvOverride(t *testing.T) {
	setupHookEnv(t)
	ts := newHookTestServer(t)
	t.Setenv(hookenv.ObservabilityServerURLEnv, "http://127.0.0.1:1/events")

	cmd := newHookSendCmd()
	cmd.SetIn(strings.NewReader(`{"session_id":"sess-flag"}`))
	cmd.SetArgs([]string{"--event-type", "Stop", "--server-url", ts.URL + "/events"})
	require.NoError(t, cmd.Execute())

	require.EqualValues(t, 1, ts.requests.Load())
}

func TestHookSend_SettingsURLUsedWithoutProjectConfig(t *testing.T) {
	setupHookEnv(t)
	ts := newHookTestServer(t)

	orig := loadToolSettings
	loadToolSettings = func() (app.Settings, error) {
		return app.Settings{ServerURL: ts.URL + "/events"}, nil
	}
	t.Cleanup(func() { loadToolSettings = orig })

	cmd := newHookSendCmd()
	cmd.SetIn(strings.NewReader(`{"session_id":"sess-settings"}`))
	cmd.SetArgs([]string{"--event-type", "Stop"})
	require.NoError(t, cmd.Execute())

	require.EqualValues(t, 1, ts.requests.Load())
}

func TestHookSend_ProjectConfigBeatsSettingsURL(t *testing.T) {
	dir := setupHookEnv(t)
	ts := newHookTestServer(t)

	orig := loadToolSettings
	loadToolSettings = func() (app.Settings, error) {
		return app.Settings{ServerURL: "http://127.0.0.1:1/events"}, nil
	}
	t.Cleanup(func() { loadToolSettings = orig })

	configPath := filepath.Join(dir, "hooks-config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"source_app": "project-app",
		"server_url": "`+ts.URL+`/events"
	}`), 0o600))

	cmd := newHookSendCmd()
	cmd.SetIn(strings.NewReader(`{"session_id":"sess-project"}`))
	cmd.SetArgs([]string{"--event-type", "Stop", "--config", configPath})
	require.NoError(t, cmd.Execute())

	require.EqualValues(t, 1, ts.requests.Load())
	require.Equal(t, "project-app", ts.lastEnvelope().SourceApp)
}

func TestPreToolUse_BlocksDangerousRemoval(t *testing.T) {
	setupHookEnv(t)
	ts := newHookTestServer(t)

	cmd := newHookPreToolUseCmd()
	cmd.SetIn(strings.NewReader(`{"session_id":"s","tool_name":"Bash","tool_input":{"command":"rm -rf /tmp/x"}}`))
	cmd.SetArgs([]string{"--server-url", ts.URL + "/events"})

	err := cmd.Execute()
	require.Error(t, err)
	require.IsType(t, printedError{}, err)

	// The event still went out before the block.
	require.EqualValues(t, 1, ts.requests.Load())
}

func TestPreToolUse_AllowsOrdinaryCommands(t *testing.T) {
	setupHookEnv(t)
	ts := newHookTestServer(t)

	cmd := newHookPreToolUseCmd()
	cmd.SetIn(strings.NewReader(`{"session_id":"s","tool_name":"Bash","tool_input":{"command":"rm file.txt"}}`))
	cmd.SetArgs([]string{"--server-url", ts.URL + "/events"})
	require.NoError(t, cmd.Execute())
	require.EqualValues(t, 1, ts.requests.Load())
}

func TestNotificationHook_AppendsSessionLog(t *testing.T) {
	dir := setupHookEnv(t)
	ts := newHookTestServer(t)

	cmd := newHookNotificationCmd()
	cmd.SetIn(strings.NewReader(`{"session_id":"sess-3","message":"Agent needs permission to run Bash"}`))
	cmd.SetArgs([]string{"--server-url", ts.URL + "/events"})
	require.NoError(t, cmd.Execute())

	logPath := filepath.Join(dir, "logs", "sess-3", "notification.json")
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "Agent needs permission to run Bash", entries[0]["message"])
}

func TestHookContext_SessionIDFallsBackToEnv(t *testing.T) {
	setupHookEnv(t)
	t.Setenv(hookenv.SessionIDEnv, "env-session")

	hctx := hookContext{RawPayload: []byte(`{}`), PayloadOK: true}
	require.Equal(t, "env-session", hctx.sessionID())

	hctx.RawPayload = []byte(`{"session_id":"payload-session"}`)
	require.Equal(t, "payload-session", hctx.sessionID())
}

func TestNewHookCmd_HandlersAreHidden(t *testing.T) {
	cmd := NewHookCmd()
	for _, name := range []string{"send", "pre-tool-use", "post-tool-use", "prompt", "notification", "stop", "subagent-stop", "pre-compact"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		require.True(t, sub.Hidden, "%s should be hidden", name)
	}
	for _, name := range []string{"install", "uninstall"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		require.False(t, sub.Hidden)
	}
}
