package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
)

// Credential variables that gate the remote engines.
const (
	ElevenLabsKeyEnv = "ELEVENLABS_API_KEY"
	OpenAIKeyEnv     = "OPENAI_API_KEY"
)

const (
	elevenLabsVoiceEnv     = "ELEVENLABS_VOICE_ID"
	defaultElevenLabsVoice = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsEndpoint     = "https://api.elevenlabs.io/v1/text-to-speech"
	openAIEndpoint         = "https://api.openai.com/v1/audio/speech"
)

// maxAudioBytes caps how much synthesized audio we are willing to spool.
const maxAudioBytes = 8 << 20

// Engine is one local synthesis backend. Available must be cheap to call;
// Speak runs under the chain's engine timeout.
type Engine interface {
	Name() string
	Available() bool
	Speak(ctx context.Context, message string) error
}

// DefaultEngines returns the fixed priority order: the premium remote voice
// first, the second remote voice next, the offline synthesizer last.
func DefaultEngines() []Engine {
	return []Engine{NewElevenLabsEngine(), NewOpenAIEngine(), NewOfflineEngine()}
}

// ElevenLabsEngine synthesizes through the ElevenLabs API and plays the
// stream with whatever audio player the host has.
type ElevenLabsEngine struct {
	apiKey     string
	voiceID    string
	endpoint   string
	httpClient *http.Client
	play       func(ctx context.Context, path string) error
}

func NewElevenLabsEngine() *ElevenLabsEngine {
	voice := strings.TrimSpace(os.Getenv(elevenLabsVoiceEnv))
	if voice == "" {
		voice = defaultElevenLabsVoice
	}
	return &ElevenLabsEngine{
		apiKey:     strings.TrimSpace(os.Getenv(ElevenLabsKeyEnv)),
		voiceID:    voice,
		endpoint:   elevenLabsEndpoint,
		httpClient: &http.Client{},
		play:       playAudio,
	}
}

func (e *ElevenLabsEngine) Name() string { return "elevenlabs" }

func (e *ElevenLabsEngine) Available() bool { return e.apiKey != "" }

func (e *ElevenLabsEngine) Speak(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]any{
		"text":     message,
		"model_id": "eleven_turbo_v2_5",
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/"+e.voiceID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("elevenlabs returned status %d", resp.StatusCode)
	}
	return playResponse(ctx, resp.Body, e.play)
}

// OpenAIEngine synthesizes through the OpenAI speech API. Second in the
// priority order, gated by OPENAI_API_KEY.
type OpenAIEngine struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	play       func(ctx context.Context, path string) error
}

func NewOpenAIEngine() *OpenAIEngine {
	return &OpenAIEngine{
		apiKey:     strings.TrimSpace(os.Getenv(OpenAIKeyEnv)),
		endpoint:   openAIEndpoint,
		httpClient: &http.Client{},
		play:       playAudio,
	}
}

func (e *OpenAIEngine) Name() string { return "openai" }

func (e *OpenAIEngine) Available() bool { return e.apiKey != "" }

func (e *OpenAIEngine) Speak(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]any{
		"model": "tts-1",
		"voice": "nova",
		"input": message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai speech returned status %d", resp.StatusCode)
	}
	return playResponse(ctx, resp.Body, e.play)
}

// OfflineEngine drives a system speech binary directly. No credentials, no
// network: the chain's last resort.
type OfflineEngine struct {
	lookPath func(string) (string, error)
	runCmd   func(ctx context.Context, bin string, args ...string) error
}

var offlineSpeakers = [][]string{
	{"say"},
	{"espeak"},
	{"spd-say", "--wait"},
}

func NewOfflineEngine() *OfflineEngine {
	return &OfflineEngine{lookPath: exec.LookPath, runCmd: runSpeechCommand}
}

func (e *OfflineEngine) Name() string { return "offline" }

func (e *OfflineEngine) Available() bool { return e.speaker() != nil }

func (e *OfflineEngine) Speak(ctx context.Context, message string) error {
	speaker := e.speaker()
	if speaker == nil {
		return errors.New("no speech binary in PATH")
	}
	return e.runCmd(ctx, speaker[0], append(speaker[1:], message)...)
}

func (e *OfflineEngine) speaker() []string {
	for _, s := range offlineSpeakers {
		if _, err := e.lookPath(s[0]); err == nil {
			return s
		}
	}
	return nil
}

// playResponse spools the audio stream to a temp file and hands it to the
// player. The file is removed once playback finishes.
func playResponse(ctx context.Context, audio io.Reader, play func(context.Context, string) error) error {
	f, err := os.CreateTemp("", "beacon-tts-*.mp3")
	if err != nil {
		return err
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()

	_, copyErr := io.Copy(f, io.LimitReader(audio, maxAudioBytes))
	closeErr := f.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}
	return play(ctx, path)
}

var audioPlayers = [][]string{
	{"afplay"},
	{"mpv", "--really-quiet"},
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
	{"mpg123", "-q"},
}

// playAudio plays the file with the first player found in PATH.
func playAudio(ctx context.Context, path string) error {
	for _, p := range audioPlayers {
		if _, err := exec.LookPath(p[0]); err != nil {
			continue
		}
		return runSpeechCommand(ctx, p[0], append(p[1:], path)...)
	}
	return errors.New("no audio player found in PATH")
}

func runSpeechCommand(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...) //nolint:gosec // G204: binary comes from a fixed allowlist resolved via LookPath
	stderrW := &limitedWriter{maxBytes: 4096}
	cmd.Stdout = io.Discard
	cmd.Stderr = stderrW

	if err := cmd.Run(); err != nil {
		stderrMsg := stderrW.buf.String()
		if stderrW.buf.Len() >= stderrW.maxBytes {
			stderrMsg += " (truncated)"
		}
		return fmt.Errorf("speech command %s failed: %w (stderr: %s)", bin, err, stderrMsg)
	}
	return nil
}

// limitedWriter caps captured stderr at maxBytes, discarding overflow while
// still reporting the full write so the child never sees a short write.
type limitedWriter struct {
	buf      bytes.Buffer
	maxBytes int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	originalLen := len(p)
	remaining := w.maxBytes - w.buf.Len()
	if remaining <= 0 {
		return originalLen, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	w.buf.Write(p)
	return originalLen, nil
}
