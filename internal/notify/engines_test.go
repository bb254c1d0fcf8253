package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultEnginesOrder(t *testing.T) {
	engines := DefaultEngines()
	require.Len(t, engines, 3)
	require.Equal(t, "elevenlabs", engines[0].Name())
	require.Equal(t, "openai", engines[1].Name())
	require.Equal(t, "offline", engines[2].Name())
}

func TestElevenLabsAvailability(t *testing.T) {
	t.Setenv(ElevenLabsKeyEnv, "")
	require.False(t, NewElevenLabsEngine().Available())

	t.Setenv(ElevenLabsKeyEnv, "  key-1  ")
	e := NewElevenLabsEngine()
	require.True(t, e.Available())
	require.Equal(t, "key-1", e.apiKey)
}

func TestElevenLabsVoiceOverride(t *testing.T) {
	t.Setenv(elevenLabsVoiceEnv, "custom-voice")
	require.Equal(t, "custom-voice", NewElevenLabsEngine().voiceID)

	t.Setenv(elevenLabsVoiceEnv, "")
	require.Equal(t, defaultElevenLabsVoice, NewElevenLabsEngine().voiceID)
}

func TestElevenLabsSpeak(t *testing.T) {
	audio := []byte("fake-mpeg-frames")
	var gotKey, gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotKey = r.Header.Get("xi-api-key")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	var playedFile string
	var playedContent []byte
	e := &ElevenLabsEngine{
		apiKey:     "key-1",
		voiceID:    "voice-9",
		endpoint:   srv.URL,
		httpClient: srv.Client(),
		play: func(_ context.Context, path string) error {
			playedFile = path
			b, err := os.ReadFile(path)
			require.NoError(t, err)
			playedContent = b
			return nil
		},
	}

	require.NoError(t, e.Speak(context.Background(), "hello there"))
	require.Equal(t, "key-1", gotKey)
	require.Equal(t, "/voice-9", gotPath)
	require.Equal(t, "hello there", gotBody["text"])
	require.Equal(t, audio, playedContent)

	_, statErr := os.Stat(playedFile)
	require.True(t, os.IsNotExist(statErr), "spooled audio must be cleaned up")
}

func TestElevenLabsSpeakNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	played := false
	e := &ElevenLabsEngine{
		apiKey:     "bad-key",
		voiceID:    "voice-9",
		endpoint:   srv.URL,
		httpClient: srv.Client(),
		play: func(context.Context, string) error {
			played = true
			return nil
		},
	}

	err := e.Speak(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
	require.False(t, played)
}

func TestOpenAIAvailability(t *testing.T) {
	t.Setenv(OpenAIKeyEnv, "")
	require.False(t, NewOpenAIEngine().Available())

	t.Setenv(OpenAIKeyEnv, "sk-test")
	require.True(t, NewOpenAIEngine().Available())
}

func TestOpenAISpeak(t *testing.T) {
	audio := []byte("fake-mpeg-frames")
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	var playedContent []byte
	e := &OpenAIEngine{
		apiKey:     "sk-test",
		endpoint:   srv.URL,
		httpClient: srv.Client(),
		play: func(_ context.Context, path string) error {
			b, err := os.ReadFile(path)
			require.NoError(t, err)
			playedContent = b
			return nil
		},
	}

	require.NoError(t, e.Speak(context.Background(), "ping"))
	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, "tts-1", gotBody["model"])
	require.Equal(t, "ping", gotBody["input"])
	require.Equal(t, audio, playedContent)
}

func TestOfflineEngineUnavailable(t *testing.T) {
	e := &OfflineEngine{
		lookPath: func(string) (string, error) { return "", exec.ErrNotFound },
	}
	require.False(t, e.Available())
	require.Error(t, e.Speak(context.Background(), "x"))
}

func TestOfflineEngineSpeaks(t *testing.T) {
	var gotBin string
	var gotArgs []string
	e := &OfflineEngine{
		lookPath: func(bin string) (string, error) {
			if bin == "espeak" {
				return "/usr/bin/espeak", nil
			}
			return "", exec.ErrNotFound
		},
		runCmd: func(_ context.Context, bin string, args ...string) error {
			gotBin = bin
			gotArgs = args
			return nil
		},
	}

	require.True(t, e.Available())
	require.NoError(t, e.Speak(context.Background(), "time to check in"))
	require.Equal(t, "espeak", gotBin)
	require.Equal(t, []string{"time to check in"}, gotArgs)
}

func TestOfflineEngineSpeakerArgs(t *testing.T) {
	e := &OfflineEngine{
		lookPath: func(bin string) (string, error) {
			if bin == "spd-say" {
				return "/usr/bin/spd-say", nil
			}
			return "", exec.ErrNotFound
		},
		runCmd: func(_ context.Context, bin string, args ...string) error {
			require.Equal(t, "spd-say", bin)
			require.Equal(t, []string{"--wait", "hello"}, args)
			return nil
		},
	}
	require.NoError(t, e.Speak(context.Background(), "hello"))
}

func TestLimitedWriterCapsCapture(t *testing.T) {
	w := &limitedWriter{maxBytes: 8}

	n, err := w.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.Equal(t, 10, n, "full length reported even when truncated")
	require.Equal(t, "01234567", w.buf.String())

	n, err = w.Write([]byte("more"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "01234567", w.buf.String())
}
