package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/beacon/internal/hookconfig"
	"github.com/dotcommander/beacon/internal/models"
	"github.com/dotcommander/beacon/internal/output"
)

const beaconCommandFallback = "beacon"

// executablePath is stubbed in tests; hook command recognition keys off the
// executable's base name.
var executablePath = os.Executable

type hookHandler struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

type hookEntry struct {
	Matcher string        `json:"matcher"`
	Hooks   []hookHandler `json:"hooks"`
}

// installOptions are the feature switches an operator can flip at install
// time. They shape both the hooks-config.json feature map and which intent
// flags each settings.json command line carries.
type installOptions struct {
	Summarize bool
	TTS       bool
	Chat      bool
	Announce  bool
}

func installOptionsFromFlags(cmd *cobra.Command) installOptions {
	noSummarize, _ := cmd.Flags().GetBool("no-summarize")
	noTTS, _ := cmd.Flags().GetBool("no-tts")
	noChat, _ := cmd.Flags().GetBool("no-chat")
	noAnnounce, _ := cmd.Flags().GetBool("no-announce")
	minimal, _ := cmd.Flags().GetBool("minimal")
	container, _ := cmd.Flags().GetBool("container")

	opts := installOptions{Summarize: true, TTS: true, Chat: true, Announce: true}
	if minimal {
		opts = installOptions{}
	}
	if noSummarize {
		opts.Summarize = false
	}
	if noTTS {
		opts.TTS = false
	}
	if noChat {
		opts.Chat = false
	}
	if noAnnounce {
		opts.Announce = false
	}
	// Containers usually lack the API budget for per-event summaries.
	if container {
		opts.Summarize = false
	}
	return opts
}

func beaconExecutable() string {
	exe, err := executablePath()
	if err != nil || strings.TrimSpace(exe) == "" || filepath.Base(exe) != "beacon" {
		// A test binary or renamed executable would write entries that
		// uninstall could no longer recognize; fall back to PATH lookup.
		return beaconCommandFallback
	}
	return exe
}

// buildBeaconHookCommand constructs the hook command string for settings.json.
// Subcommands and flags are hardcoded literals, so concatenation is safe.
func buildBeaconHookCommand(subcommand string, flags ...string) string {
	exe := beaconExecutable()
	parts := make([]string, 0, len(flags)+2)
	if exe == beaconCommandFallback {
		parts = append(parts, "beacon")
	} else {
		// Quote the executable path so hook commands survive spaces.
		parts = append(parts, fmt.Sprintf("%q", exe))
	}
	parts = append(parts, "hook", subcommand)
	parts = append(parts, flags...)
	return strings.Join(parts, " ")
}

// beaconHookOptions returns the intent flags each lifecycle event's command
// line carries under the selected options.
func beaconHookOptions(opts installOptions) map[string][]string {
	var summarize []string
	if opts.Summarize {
		summarize = []string{"--summarize"}
	}

	var stopFlags []string
	if opts.Chat {
		stopFlags = append(stopFlags, "--add-chat")
	}
	if opts.Announce {
		stopFlags = append(stopFlags, "--announce")
	}

	var notificationFlags []string
	if opts.TTS {
		notificationFlags = append(notificationFlags, "--notify")
	}

	return map[string][]string{
		models.EventPreToolUse:       summarize,
		models.EventPostToolUse:      summarize,
		models.EventUserPromptSubmit: summarize,
		models.EventNotification:     notificationFlags,
		models.EventStop:             stopFlags,
		models.EventSubagentStop:     nil,
		models.EventPreCompact:       nil,
	}
}

// beaconHooks returns the per-event settings.json entries for the selected
// options. Timeouts are generous where the handler may speak (TTS engines
// get 10s of their own) and tight everywhere else.
func beaconHooks(opts installOptions) map[string]hookEntry {
	subcommands := map[string]string{
		models.EventPreToolUse:       "pre-tool-use",
		models.EventPostToolUse:      "post-tool-use",
		models.EventUserPromptSubmit: "prompt",
		models.EventNotification:     "notification",
		models.EventStop:             "stop",
		models.EventSubagentStop:     "subagent-stop",
		models.EventPreCompact:       "pre-compact",
	}
	timeouts := map[string]int{
		models.EventNotification: 15000,
		models.EventStop:         15000,
	}

	entries := make(map[string]hookEntry, len(subcommands))
	for eventName, flags := range beaconHookOptions(opts) {
		timeout := timeouts[eventName]
		if timeout == 0 {
			timeout = 6000
		}
		entries[eventName] = hookEntry{
			Hooks: []hookHandler{{
				Type:    "command",
				Command: buildBeaconHookCommand(subcommands[eventName], flags...),
				Timeout: timeout,
			}},
		}
	}
	return entries
}

func settingsPath(targetDir string) string {
	return filepath.Join(targetDir, ".claude", "settings.json")
}

// readSettings reads and parses a .claude/settings.json.
// Returns an empty map if the file doesn't exist.
func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path derives from the operator's --target flag
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return settings, nil
}

// writeSettings writes settings back with 2-space indent.
func writeSettings(path string, settings map[string]any) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

func isBeaconHookCommand(command string) bool {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return false
	}
	parts := strings.Fields(cmd)
	if len(parts) < 3 {
		return false
	}

	execToken := strings.Trim(parts[0], "\"'")
	if filepath.Base(execToken) != "beacon" {
		return false
	}
	if parts[1] != "hook" {
		return false
	}

	sub := parts[2]
	return sub == "send" ||
		sub == "pre-tool-use" ||
		sub == "post-tool-use" ||
		sub == "prompt" ||
		sub == "notification" ||
		sub == "stop" ||
		sub == "subagent-stop" ||
		sub == "pre-compact"
}

func entryHasBeaconHook(entry map[string]any) bool {
	hooks, ok := entry["hooks"].([]any)
	if !ok {
		return false
	}
	for _, h := range hooks {
		hMap, ok := h.(map[string]any)
		if !ok {
			continue
		}
		cmd, _ := hMap["command"].(string)
		if isBeaconHookCommand(cmd) {
			return true
		}
	}
	return false
}

// hookEntryEqual compares two parsed hook entries by their JSON representation.
// Simpler than reflect.DeepEqual and sufficient since both sides originate from JSON.
func hookEntryEqual(a, b map[string]any) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}

// installOutcome indicates what happened when upserting a hook entry.
type installOutcome int

const (
	hookInstalled installOutcome = iota
	hookUpdated
	hookSkipped
)

// upsertBeaconHookEntry replaces any existing beacon hook entry or appends a
// new one. Foreign entries are preserved byte-for-byte. Returns the updated
// slice and the outcome.
func upsertBeaconHookEntry(existing []any, newEntry map[string]any) ([]any, installOutcome) {
	var kept []any
	hadBeacon := false
	matchingBeacon := false

	for _, currentEntry := range existing {
		entryObj, ok := currentEntry.(map[string]any)
		if !ok || !entryHasBeaconHook(entryObj) {
			kept = append(kept, currentEntry)
			continue
		}
		hadBeacon = true
		if hookEntryEqual(entryObj, newEntry) {
			matchingBeacon = true
		}
		// strip old beacon entry; re-appended below
	}

	entries := append(kept, newEntry)
	if matchingBeacon {
		return entries, hookSkipped
	}
	if hadBeacon {
		return entries, hookUpdated
	}
	return entries, hookInstalled
}

// detectProjectName resolves the source_app identity for a project directory.
// Order: git origin remote, package.json, Cargo.toml, go.mod, directory name.
func detectProjectName(dir string) string {
	if name := gitRemoteProjectName(dir); name != "" {
		return name
	}
	if name := packageJSONName(dir); name != "" {
		return name
	}
	if name := cargoTomlName(dir); name != "" {
		return name
	}
	if name := goModName(dir); name != "" {
		return name
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Base(dir)
	}
	return filepath.Base(abs)
}

// gitRemoteProjectName parses .git/config for the origin remote URL and
// returns its last path segment without the .git suffix.
func gitRemoteProjectName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, ".git", "config")) //nolint:gosec // G304: path derives from the operator's --target flag
	if err != nil {
		return ""
	}

	inOrigin := false
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			inOrigin = trimmed == `[remote "origin"]`
			continue
		}
		if !inOrigin || !strings.HasPrefix(trimmed, "url") {
			continue
		}
		_, url, found := strings.Cut(trimmed, "=")
		if !found {
			continue
		}
		url = strings.TrimSpace(url)
		url = strings.TrimSuffix(url, ".git")
		// Handles both scp-like (git@host:org/repo) and URL forms.
		if idx := strings.LastIndexAny(url, "/:"); idx >= 0 {
			url = url[idx+1:]
		}
		return url
	}
	return ""
}

func packageJSONName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json")) //nolint:gosec // G304: path derives from the operator's --target flag
	if err != nil {
		return ""
	}
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	// Scoped npm names keep only the package part.
	if idx := strings.LastIndex(pkg.Name, "/"); idx >= 0 {
		return pkg.Name[idx+1:]
	}
	return pkg.Name
}

func cargoTomlName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "Cargo.toml")) //nolint:gosec // G304: path derives from the operator's --target flag
	if err != nil {
		return ""
	}
	inPackage := false
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			inPackage = trimmed == "[package]"
			continue
		}
		if !inPackage || !strings.HasPrefix(trimmed, "name") {
			continue
		}
		_, value, found := strings.Cut(trimmed, "=")
		if !found {
			continue
		}
		return strings.Trim(strings.TrimSpace(value), `"`)
	}
	return ""
}

func goModName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod")) //nolint:gosec // G304: path derives from the operator's --target flag
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "module ") {
			continue
		}
		modulePath := strings.TrimSpace(strings.TrimPrefix(trimmed, "module "))
		if idx := strings.LastIndex(modulePath, "/"); idx >= 0 {
			return modulePath[idx+1:]
		}
		return modulePath
	}
	return ""
}

// writeHooksConfig writes .claude/hooks-config.json for the project. Returns
// "created", "updated", or "unchanged".
func writeHooksConfig(targetDir string, cfg hookconfig.Config) (string, string, error) {
	path := hookconfig.DefaultPath(targetDir)

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return path, "", fmt.Errorf("marshal hooks config: %w", err)
	}
	data = append(data, '\n')

	status := "created"
	if existing, readErr := os.ReadFile(path); readErr == nil { //nolint:gosec // G304: path derives from the operator's --target flag
		if bytes.Equal(existing, data) {
			return path, "unchanged", nil
		}
		status = "updated"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return path, "", fmt.Errorf("write hooks config: %w", err)
	}
	return path, status, nil
}

func newHookInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install beacon hooks into a project",
		Long: `Writes .claude/hooks-config.json and registers beacon hook handlers in
.claude/settings.json. Idempotent — safe to run multiple times. Entries
written by other tools are preserved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir, _ := cmd.Flags().GetString("target")
			if targetDir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return cmdErr(fmt.Errorf("resolve working directory: %w", err))
				}
				targetDir = wd
			}

			projectName, _ := cmd.Flags().GetString("project-name")
			if projectName == "" {
				projectName = detectProjectName(targetDir)
			}
			serverURL, _ := cmd.Flags().GetString("server-url")
			if serverURL == "" {
				serverURL = hookconfig.DefaultServerURL
			}
			opts := installOptionsFromFlags(cmd)

			cfg := hookconfig.Config{
				SourceApp: projectName,
				ServerURL: serverURL,
				Features: map[string]bool{
					hookconfig.FeatureSummarize:               opts.Summarize,
					hookconfig.FeatureTTSNotifications:        opts.TTS,
					hookconfig.FeatureChatTranscript:          opts.Chat,
					hookconfig.FeatureCompletionAnnouncements: opts.Announce,
				},
				Hooks: map[string]hookconfig.HookSetting{},
			}

			for eventName, flags := range beaconHookOptions(opts) {
				cfg.Hooks[eventName] = hookconfig.HookSetting{Enabled: true, Options: flags}
			}
			hooks := beaconHooks(opts)

			configPath, configStatus, err := writeHooksConfig(targetDir, cfg)
			if err != nil {
				return cmdErr(err)
			}

			path := settingsPath(targetDir)
			settings, err := readSettings(path)
			if err != nil {
				return cmdErr(err)
			}

			hooksObj, _ := settings["hooks"].(map[string]any)
			if hooksObj == nil {
				hooksObj = map[string]any{}
			}

			var installed []string
			var updated []string
			var skipped []string

			for eventName, entry := range hooks {
				existing, _ := hooksObj[eventName].([]any)

				entryJSON, _ := json.Marshal(entry)
				var entryMap map[string]any
				_ = json.Unmarshal(entryJSON, &entryMap)

				entries, outcome := upsertBeaconHookEntry(existing, entryMap)
				hooksObj[eventName] = entries

				switch outcome {
				case hookInstalled:
					installed = append(installed, eventName)
				case hookUpdated:
					updated = append(updated, eventName)
				case hookSkipped:
					skipped = append(skipped, eventName)
				}
			}

			settings["hooks"] = hooksObj
			if err := writeSettings(path, settings); err != nil {
				return cmdErr(err)
			}

			sort.Strings(installed)
			sort.Strings(updated)
			sort.Strings(skipped)

			type resp struct {
				Message      string   `json:"message"`
				ProjectName  string   `json:"project_name"`
				ServerURL    string   `json:"server_url"`
				ConfigPath   string   `json:"config_path"`
				ConfigStatus string   `json:"config_status"`
				SettingsPath string   `json:"settings_path"`
				Installed    []string `json:"installed"`
				Updated      []string `json:"updated,omitempty"`
				Skipped      []string `json:"skipped"`
			}

			message := fmt.Sprintf("hooks already installed for %s", projectName)
			if len(installed) > 0 || len(updated) > 0 {
				message = fmt.Sprintf("hooks installed for %s (%d installed, %d updated). Run 'beacon doctor' to verify.",
					projectName, len(installed), len(updated))
			}

			return output.PrintSuccess(resp{
				Message:      message,
				ProjectName:  projectName,
				ServerURL:    serverURL,
				ConfigPath:   configPath,
				ConfigStatus: configStatus,
				SettingsPath: path,
				Installed:    installed,
				Updated:      updated,
				Skipped:      skipped,
			})
		},
	}

	cmd.Flags().String("target", "", "Project directory (default: current directory)")
	cmd.Flags().String("project-name", "", "Override the detected project name")
	cmd.Flags().String("server-url", "", "Events URL to write into hooks-config.json")
	cmd.Flags().Bool("no-summarize", false, "Disable AI event summaries")
	cmd.Flags().Bool("no-tts", false, "Disable TTS notifications")
	cmd.Flags().Bool("no-chat", false, "Disable chat transcript attachment")
	cmd.Flags().Bool("no-announce", false, "Disable completion announcements")
	cmd.Flags().Bool("minimal", false, "Event relay only: disable every optional feature")
	cmd.Flags().Bool("container", false, "Container install: keep the docker placeholder host and skip summaries")

	return cmd
}

func newHookUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove beacon hook entries from a project",
		Long:  `Removes beacon-managed entries from .claude/settings.json. Entries written by other tools are untouched; hooks-config.json is left in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir, _ := cmd.Flags().GetString("target")
			if targetDir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return cmdErr(fmt.Errorf("resolve working directory: %w", err))
				}
				targetDir = wd
			}

			path := settingsPath(targetDir)

			type resp struct {
				SettingsPath string   `json:"settings_path"`
				Removed      []string `json:"removed"`
			}

			settings, err := readSettings(path)
			if err != nil {
				return cmdErr(err)
			}

			hooksObj, _ := settings["hooks"].(map[string]any)
			if hooksObj == nil {
				return output.PrintSuccess(resp{SettingsPath: path, Removed: []string{}})
			}

			removed := []string{}
			for _, eventName := range models.KnownEventTypes() {
				entries, ok := hooksObj[eventName].([]any)
				if !ok {
					continue
				}

				var kept []any
				for _, entry := range entries {
					entryMap, ok := entry.(map[string]any)
					if ok && entryHasBeaconHook(entryMap) {
						continue
					}
					kept = append(kept, entry)
				}

				if len(kept) != len(entries) {
					removed = append(removed, eventName)
				}

				if len(kept) == 0 {
					delete(hooksObj, eventName)
				} else {
					hooksObj[eventName] = kept
				}
			}

			settings["hooks"] = hooksObj
			if err := writeSettings(path, settings); err != nil {
				return cmdErr(err)
			}

			sort.Strings(removed)
			return output.PrintSuccess(resp{SettingsPath: path, Removed: removed})
		},
	}

	cmd.Flags().String("target", "", "Project directory (default: current directory)")

	return cmd
}
