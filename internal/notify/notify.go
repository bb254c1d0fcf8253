// Package notify announces agent events out loud. It tries server-side
// speech synthesis first and falls back to a local engine picked by
// credential presence. Every path is bounded by a timeout and none of them
// can fail the calling hook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// WaitingMessage is the one notification that never triggers speech. It
// fires on the most frequent, least actionable event.
const WaitingMessage = "Claude is waiting for your input"

// EngineerNameEnv optionally personalizes the spoken announcement.
const EngineerNameEnv = "ENGINEER_NAME"

const ttsPath = "/api/tts/notification"

// Timeout defaults. Probe and post are deliberately tight: the chain runs
// inside a hook and the host agent is waiting.
const (
	DefaultProbeTimeout  = 1 * time.Second
	DefaultPostTimeout   = 2 * time.Second
	DefaultEngineTimeout = 10 * time.Second
)

// State is where a chain run ended up. ServerFailed is transitional and
// shows up in logs; the other values are terminal.
type State string

const (
	StateNotAttempted State = "not_attempted"
	StateServerOK     State = "server_ok"
	StateServerFailed State = "server_failed"
	StateLocalOK      State = "local_ok"
	StateLocalFailed  State = "local_failed"
	StateSuppressed   State = "suppressed"
)

var errNoServer = errors.New("no tts server reachable")

// Chain is the notification fallback chain. Zero values fall back to the
// package defaults, so tests can construct one field at a time.
type Chain struct {
	// Candidates are server base URLs probed in order.
	Candidates   []string
	EngineerName string
	// Engines are tried by Available() in slice order; only the first
	// available one is attempted.
	Engines []Engine

	ProbeTimeout  time.Duration
	PostTimeout   time.Duration
	EngineTimeout time.Duration

	HTTPClient *http.Client
	Rand       *rand.Rand
}

// NewChain wires the default engine set against the given server candidates.
func NewChain(candidates []string, engineerName string) *Chain {
	return &Chain{
		Candidates:   candidates,
		EngineerName: engineerName,
		Engines:      DefaultEngines(),
	}
}

// Run walks the chain for one notification message and reports the terminal
// state. It never returns an error: a chain that cannot speak stays quiet.
func (c *Chain) Run(ctx context.Context, message string) State {
	if message == WaitingMessage {
		slog.Debug("notification suppressed", "reason", "generic waiting message")
		return StateSuppressed
	}

	err := c.announceViaServer(ctx)
	if err == nil {
		return StateServerOK
	}
	slog.Debug("server tts unavailable", "state", StateServerFailed, "error", err)

	engine := c.selectEngine()
	if engine == nil {
		slog.Debug("notification suppressed", "reason", "no local engine available")
		return StateSuppressed
	}

	speech := Message(c.EngineerName, c.Rand)
	speakCtx, cancel := context.WithTimeout(ctx, c.engineTimeout())
	defer cancel()
	if err := engine.Speak(speakCtx, speech); err != nil {
		slog.Debug("local tts failed", "engine", engine.Name(), "error", err)
		return StateLocalFailed
	}
	slog.Debug("local tts spoke", "engine", engine.Name())
	return StateLocalOK
}

// announceViaServer probes the candidate URLs and posts a notification
// request to the first live one. The server composes and voices its own
// message; we only tell it who to address.
func (c *Chain) announceViaServer(ctx context.Context) error {
	base := c.probe(ctx)
	if base == "" {
		return errNoServer
	}

	payload, err := json.Marshal(map[string]any{
		"notification":  true,
		"engineer_name": strings.TrimSpace(c.EngineerName),
	})
	if err != nil {
		return err
	}

	postCtx, cancel := context.WithTimeout(ctx, c.postTimeout())
	defer cancel()
	req, err := http.NewRequestWithContext(postCtx, http.MethodPost, base+ttsPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// probe returns the first candidate that answers a HEAD request in time.
// A 404 still counts: the server is up even without a root route.
func (c *Chain) probe(ctx context.Context) string {
	for _, base := range c.Candidates {
		if base == "" {
			continue
		}
		if c.probeOne(ctx, base) {
			return base
		}
	}
	return ""
}

func (c *Chain) probeOne(ctx context.Context, base string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, base, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound
}

func (c *Chain) selectEngine() Engine {
	for _, e := range c.Engines {
		if e.Available() {
			return e
		}
	}
	return nil
}

func (c *Chain) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Chain) probeTimeout() time.Duration {
	if c.ProbeTimeout > 0 {
		return c.ProbeTimeout
	}
	return DefaultProbeTimeout
}

func (c *Chain) postTimeout() time.Duration {
	if c.PostTimeout > 0 {
		return c.PostTimeout
	}
	return DefaultPostTimeout
}

func (c *Chain) engineTimeout() time.Duration {
	if c.EngineTimeout > 0 {
		return c.EngineTimeout
	}
	return DefaultEngineTimeout
}

// Message composes the spoken announcement. A configured engineer name is
// worked in roughly 30% of the time so the voice line stays fresh.
func Message(engineerName string, rng *rand.Rand) string {
	name := strings.TrimSpace(engineerName)
	if name != "" && roll(rng) < 0.3 {
		return name + ", your agent needs your input"
	}
	return "Your agent needs your input"
}

func roll(rng *rand.Rand) float64 {
	if rng != nil {
		return rng.Float64()
	}
	return rand.Float64()
}
