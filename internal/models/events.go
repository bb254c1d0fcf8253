package models

// Hook event types as named by the Claude Code hook system. These are the
// values carried in the envelope's hook_event_type field and keyed in
// .claude/settings.json. The server accepts arbitrary strings; these constants
// exist to avoid typos at call sites.
const (
	EventPreToolUse       = "PreToolUse"
	EventPostToolUse      = "PostToolUse"
	EventUserPromptSubmit = "UserPromptSubmit"
	EventNotification     = "Notification"
	EventStop             = "Stop"
	EventSubagentStop     = "SubagentStop"
	EventPreCompact       = "PreCompact"
)

// KnownEventTypes lists every hook event type beacon can register, in the
// order the installer writes them.
func KnownEventTypes() []string {
	return []string{
		EventPreToolUse,
		EventPostToolUse,
		EventUserPromptSubmit,
		EventNotification,
		EventStop,
		EventSubagentStop,
		EventPreCompact,
	}
}
