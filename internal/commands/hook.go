package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/beacon/internal/app"
	"github.com/dotcommander/beacon/internal/deliver"
	"github.com/dotcommander/beacon/internal/envelope"
	"github.com/dotcommander/beacon/internal/guard"
	"github.com/dotcommander/beacon/internal/hookconfig"
	"github.com/dotcommander/beacon/internal/hookenv"
	"github.com/dotcommander/beacon/internal/models"
	"github.com/dotcommander/beacon/internal/notify"
	"github.com/dotcommander/beacon/internal/sessionlog"
	"github.com/dotcommander/beacon/internal/store"
)

// maxHookStdinBytes caps stdin reads. Hook payloads are small JSON objects;
// 1 MB is generous headroom that prevents unbounded allocation.
const maxHookStdinBytes = 1 << 20

// NewHookCmd creates the hook parent command.
func NewHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Hook handlers and installers for the agent runtime",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newHookInstallCmd())
	cmd.AddCommand(newHookUninstallCmd())

	// Hook handler subcommands — invoked by the agent runtime via
	// settings.json, not by operators directly. Hidden from help output to
	// reduce command surface noise.
	for _, sub := range []*cobra.Command{
		newHookSendCmd(),
		newHookPreToolUseCmd(),
		newHookPostToolUseCmd(),
		newHookPromptCmd(),
		newHookNotificationCmd(),
		newHookStopCmd(),
		newHookSubagentStopCmd(),
		newHookPreCompactCmd(),
	} {
		sub.Hidden = true
		cmd.AddCommand(sub)
	}

	namespaceIndex(cmd)
	return cmd
}

// hookInput is the JSON the agent runtime sends on stdin to hooks. The shape
// varies by lifecycle event; absent fields stay zero.
type hookInput struct {
	SessionID      string          `json:"session_id"`
	TranscriptPath string          `json:"transcript_path"`
	CWD            string          `json:"cwd"`
	HookEventName  string          `json:"hook_event_name"`
	ToolName       string          `json:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input"`
	ToolResponse   json.RawMessage `json:"tool_response"`
	Message        string          `json:"message"`
	Prompt         string          `json:"prompt"`
}

// hookContext holds the resolved per-invocation state shared by all hook
// handlers: the parsed payload, its raw bytes, the project config, and the
// detected execution environment. Resolved once and passed down by value so
// no component re-derives configuration.
type hookContext struct {
	Input       hookInput
	RawPayload  []byte
	PayloadOK   bool
	Config      hookconfig.Config
	ConfigFound bool
	Env         hookenv.Kind
	CWD         string
}

// sessionID resolves the session identity for this invocation: the payload
// value, then the environment/file fallbacks, then the sentinel.
func (h hookContext) sessionID() string {
	sid := envelope.SessionID(h.RawPayload)
	if sid != envelope.UnknownSession {
		return sid
	}
	if fb := hookenv.FallbackSessionID(h.CWD); fb != "" {
		return fb
	}
	return sid
}

// resolveHookContext reads stdin and resolves working directory, project
// config, and execution environment.
func resolveHookContext(cmd *cobra.Command) hookContext {
	input, raw, ok := readHookStdin(cmd.InOrStdin())

	cwd := input.CWD
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = hookconfig.DefaultPath(cwd)
	}

	// Record the payload's session identity so out-of-process wrappers that
	// receive no payload of their own can still resolve it. Only for
	// projects that already carry a .claude directory.
	if sid := envelope.SessionID(raw); ok && sid != envelope.UnknownSession {
		if _, err := os.Stat(filepath.Join(cwd, ".claude")); err == nil {
			if err := hookenv.WriteSessionIDFile(cwd, sid); err != nil {
				slog.Debug("session id file write failed", "error", err)
			}
		}
	}

	_, statErr := os.Stat(configPath)

	return hookContext{
		Input:       input,
		RawPayload:  raw,
		PayloadOK:   ok,
		Config:      hookconfig.Load(configPath),
		ConfigFound: statErr == nil,
		Env:         hookenv.Resolve(),
		CWD:         cwd,
	}
}

// readHookStdin reads one bounded JSON payload. A payload that fails to
// parse is kept as raw bytes with ok=false so handlers can decline delivery
// without losing diagnostics.
func readHookStdin(r io.Reader) (input hookInput, raw []byte, ok bool) {
	data, err := io.ReadAll(io.LimitReader(r, maxHookStdinBytes))
	if err != nil {
		slog.Warn("hook stdin read failed", "error", err)
		return hookInput{}, nil, false
	}
	if err := json.Unmarshal(data, &input); err != nil {
		slog.Warn("hook stdin unmarshal failed", "error", err, "bytes", len(data))
		return hookInput{}, data, false
	}
	return input, data, true
}

// addSendFlags registers the flag set shared by every hook handler. The
// option flags mirror the query-level intents; the installer writes the
// subset each lifecycle event should carry.
func addSendFlags(cmd *cobra.Command) {
	cmd.Flags().String("source-app", "", "Override the source application name")
	cmd.Flags().String("server-url", "", "Override the configured server URL")
	cmd.Flags().String("config", "", "Path to hooks-config.json (default: <cwd>/.claude/hooks-config.json)")
	cmd.Flags().Bool("summarize", false, "Request an AI summary of the event")
	cmd.Flags().Bool("notify", false, "Request a TTS notification")
	cmd.Flags().Bool("announce", false, "Request a completion announcement")
	cmd.Flags().Bool("add-chat", false, "Attach the chat transcript if available")
}

// sendHookEvent relays one hook payload to the observability server and
// journals the attempt. This is the hook boundary: every delivery failure is
// inspected, logged, recorded, and discarded here — the hook outcome never
// depends on it.
func sendHookEvent(cmd *cobra.Command, hctx hookContext, eventType string) {
	if !hctx.PayloadOK {
		slog.Warn("hook payload malformed, skipping delivery", "event_type", eventType)
		return
	}

	cfg := hctx.Config
	sourceApp := cfg.SourceApp
	if v, _ := cmd.Flags().GetString("source-app"); v != "" {
		sourceApp = v
	}
	serverURL := deliveryURL(cmd, hctx)

	env := envelope.Build(hctx.RawPayload, eventType, sourceApp)
	env.SessionID = hctx.sessionID()

	if addChat, _ := cmd.Flags().GetBool("add-chat"); addChat {
		env.AttachChat(envelope.TranscriptPath(hctx.RawPayload))
	}

	summarize, _ := cmd.Flags().GetBool("summarize")
	notifyFlag, _ := cmd.Flags().GetBool("notify")
	announce, _ := cmd.Flags().GetBool("announce")
	opts := deliver.Options{Summarize: summarize, Notify: notifyFlag, Announce: announce}.Gated(cfg)

	delivery := app.EffectiveDeliverySettings()
	client := deliver.New(serverURL, time.Duration(delivery.TimeoutMS)*time.Millisecond)

	start := time.Now()
	err := client.Send(cmd.Context(), env, opts)
	journalDelivery(env, client.URL(), err, time.Since(start))

	if err != nil {
		var dErr *deliver.Error
		if errors.As(err, &dErr) {
			slog.Warn("event delivery failed",
				"event_type", eventType,
				"kind", string(dErr.Kind),
				"status", dErr.Status,
				"url", dErr.URL)
			return
		}
		slog.Warn("event delivery failed", "event_type", eventType, "error", err)
	}
}

// loadToolSettings is swapped in tests; the settings singleton caches the
// first HOME it sees for the life of the process.
var loadToolSettings = app.LoadSettings

// deliveryURL resolves the events endpoint. Precedence: the --server-url
// flag, then the OBSERVABILITY_SERVER_URL override, then the project config
// URL rewritten for the detected environment. A project without a
// hooks-config.json of its own falls back to the tool settings URL before
// the built-in default.
func deliveryURL(cmd *cobra.Command, hctx hookContext) string {
	if v, _ := cmd.Flags().GetString("server-url"); v != "" {
		return v
	}
	if env := strings.TrimSpace(os.Getenv(hookenv.ObservabilityServerURLEnv)); env != "" {
		return env
	}
	configured := hctx.Config.ServerURL
	if !hctx.ConfigFound {
		if s, err := loadToolSettings(); err == nil && s.ServerURL != "" {
			configured = s.ServerURL
		}
	}
	return hookenv.ResolveServerURL(configured, hctx.Env)
}

// journalDelivery records one delivery attempt in the local journal. Best
// effort: an unusable journal is a debug-level event, nothing more.
func journalDelivery(env envelope.Envelope, url string, sendErr error, elapsed time.Duration) {
	d := &models.Delivery{
		SessionID:  env.SessionID,
		EventType:  env.HookEventType,
		SourceApp:  env.SourceApp,
		URL:        url,
		Delivered:  sendErr == nil,
		DurationMS: elapsed.Milliseconds(),
	}
	if sendErr == nil {
		// A nil send error means exactly HTTP 200.
		d.HTTPStatus = http.StatusOK
	} else {
		d.Error = sendErr.Error()
		var dErr *deliver.Error
		if errors.As(sendErr, &dErr) {
			d.HTTPStatus = dErr.Status
		}
	}

	db, err := store.InitJournal()
	if err != nil {
		slog.Debug("delivery journal unavailable", "error", err)
		return
	}
	defer func() { _ = db.Close() }()

	if err := store.RecordDelivery(db, d); err != nil {
		slog.Debug("delivery journal write failed", "error", err)
	}
}

// bashCommand extracts the shell command from a Bash tool invocation, or ""
// for any other tool or payload shape.
func bashCommand(input hookInput) string {
	if input.ToolName != "Bash" {
		return ""
	}
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input.ToolInput, &args); err != nil {
		return ""
	}
	return args.Command
}

// newHookSendCmd creates the generic event sender. The per-lifecycle
// handlers layer on the same path; this one exists for custom wiring where
// the event type is supplied explicitly.
func newHookSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "send",
		Short:         "Relay one hook payload from stdin with an explicit event type",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eventType, _ := cmd.Flags().GetString("event-type")
			if eventType == "" {
				return cmdErr(errors.New("--event-type is required"))
			}
			hctx := resolveHookContext(cmd)
			sendHookEvent(cmd, hctx, eventType)
			return nil
		},
	}
	cmd.Flags().String("event-type", "", "Hook event type (PreToolUse, PostToolUse, ...) (required)")
	addSendFlags(cmd)
	return cmd
}

// newHookPreToolUseCmd creates the pre-tool-use handler: the only hook that
// can block the host action. A recursive force removal in a Bash invocation
// exits nonzero after the refusal is written to stderr; everything else
// relays and exits clean.
func newHookPreToolUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pre-tool-use",
		Short:         "PreToolUse hook — relays the event and blocks destructive commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx := resolveHookContext(cmd)
			sendHookEvent(cmd, hctx, models.EventPreToolUse)

			if command := bashCommand(hctx.Input); guard.DangerousRemoval(command) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Blocked dangerous command: %s\n", command)
				return printedError{err: &guard.BlockError{Command: command}}
			}
			return nil
		},
	}
	addSendFlags(cmd)
	return cmd
}

func newHookPostToolUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "post-tool-use",
		Short:         "PostToolUse hook — relays the event, warns on credential-looking output",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx := resolveHookContext(cmd)
			sendHookEvent(cmd, hctx, models.EventPostToolUse)

			// Warn only; sensitive output never blocks and never gets echoed.
			if marker, found := guard.SensitiveMarker(string(hctx.Input.ToolResponse)); found {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Potential sensitive data in %s output\n", hctx.Input.ToolName)
				slog.Warn("sensitive marker in tool output", "tool", hctx.Input.ToolName, "marker", marker)
			}
			return nil
		},
	}
	addSendFlags(cmd)
	return cmd
}

func newHookPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "prompt",
		Short:         "UserPromptSubmit hook — relays the submitted prompt",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx := resolveHookContext(cmd)
			sendHookEvent(cmd, hctx, models.EventUserPromptSubmit)
			return nil
		},
	}
	addSendFlags(cmd)
	return cmd
}

// newHookNotificationCmd creates the notification handler: relay the event,
// append it to the session log, and walk the TTS fallback chain when the
// installer asked for voice notifications.
func newHookNotificationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "notification",
		Short:         "Notification hook — relays, logs, and voices attention requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx := resolveHookContext(cmd)
			sendHookEvent(cmd, hctx, models.EventNotification)

			if hctx.PayloadOK {
				delivery := app.EffectiveDeliverySettings()
				if err := sessionlog.Append(delivery.SessionLogDir, hctx.sessionID(), "notification", hctx.RawPayload); err != nil {
					slog.Warn("session log append failed", "error", err)
				}
			}

			notifyFlag, _ := cmd.Flags().GetBool("notify")
			if notifyFlag && hctx.Config.FeatureEnabled(hookconfig.FeatureTTSNotifications) {
				chain := notify.NewChain(hookenv.CandidateBaseURLs(hctx.Env), engineerName())
				state := chain.Run(cmd.Context(), hctx.Input.Message)
				slog.Debug("notification chain finished", "state", string(state))
			}
			return nil
		},
	}
	addSendFlags(cmd)
	return cmd
}

func newHookStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stop",
		Short:         "Stop hook — relays session completion with transcript and announcement intents",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx := resolveHookContext(cmd)
			sendHookEvent(cmd, hctx, models.EventStop)
			return nil
		},
	}
	addSendFlags(cmd)
	return cmd
}

func newHookSubagentStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "subagent-stop",
		Short:         "SubagentStop hook — relays nested agent completion",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx := resolveHookContext(cmd)
			sendHookEvent(cmd, hctx, models.EventSubagentStop)
			return nil
		},
	}
	addSendFlags(cmd)
	return cmd
}

func newHookPreCompactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pre-compact",
		Short:         "PreCompact hook — relays the pre-compaction snapshot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx := resolveHookContext(cmd)
			sendHookEvent(cmd, hctx, models.EventPreCompact)
			return nil
		},
	}
	addSendFlags(cmd)
	return cmd
}

// engineerName resolves who local announcements should address: the
// ENGINEER_NAME environment variable, then the tool settings file.
func engineerName() string {
	if name := os.Getenv(notify.EngineerNameEnv); name != "" {
		return name
	}
	if s, err := loadToolSettings(); err == nil {
		return s.EngineerName
	}
	return ""
}
