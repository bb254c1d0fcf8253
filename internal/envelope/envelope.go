package envelope

import (
	"encoding/json"
	"time"
)

// UnknownSession is the sentinel session identity used when a payload
// carries none. The server groups such events under one bucket rather than
// dropping them.
const UnknownSession = "unknown"

// Envelope is the unit sent over the wire: one normalized event wrapping the
// raw hook payload. Constructed, sent, and discarded within a single hook
// invocation; never queued or retried across process lifetimes.
type Envelope struct {
	SourceApp     string            `json:"source_app"`
	SessionID     string            `json:"session_id"`
	HookEventType string            `json:"hook_event_type"`
	Payload       json.RawMessage   `json:"payload"`
	Timestamp     int64             `json:"timestamp"`
	Chat          []json.RawMessage `json:"chat,omitempty"`
}

// Build normalizes a raw hook payload into an envelope. The payload is
// carried unmodified; a payload that is not valid JSON degrades to an empty
// object so the envelope itself is always well-formed. The timestamp is
// millisecond epoch time assigned here, at send time.
func Build(rawPayload []byte, eventType, sourceApp string) Envelope {
	payload := json.RawMessage(rawPayload)
	if !json.Valid(rawPayload) {
		payload = json.RawMessage("{}")
	}
	return Envelope{
		SourceApp:     sourceApp,
		SessionID:     SessionID(rawPayload),
		HookEventType: eventType,
		Payload:       payload,
		Timestamp:     time.Now().UnixMilli(),
	}
}

// SessionID extracts the session identity from a payload, or the sentinel.
// Non-string values count as absent.
func SessionID(rawPayload []byte) string {
	var probe struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rawPayload, &probe); err != nil || probe.SessionID == "" {
		return UnknownSession
	}
	return probe.SessionID
}

// TranscriptPath extracts the transcript file path from a payload, if any.
func TranscriptPath(rawPayload []byte) string {
	var probe struct {
		TranscriptPath string `json:"transcript_path"`
	}
	if err := json.Unmarshal(rawPayload, &probe); err != nil {
		return ""
	}
	return probe.TranscriptPath
}
