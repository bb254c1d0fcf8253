package envelope

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func TestAttachChatSkipsInvalidLinesIndividually(t *testing.T) {
	path := writeTranscript(t,
		`{"role":"user","content":"one"}`,
		`{broken line`,
		`{"role":"assistant","content":"two"}`,
		`also not json`,
		`{"role":"user","content":"three"}`,
	)

	env := Build([]byte(`{"session_id":"s"}`), "Stop", "app")
	env.AttachChat(path)

	require.Len(t, env.Chat, 3)
	require.JSONEq(t, `{"role":"user","content":"one"}`, string(env.Chat[0]))
	require.JSONEq(t, `{"role":"assistant","content":"two"}`, string(env.Chat[1]))
	require.JSONEq(t, `{"role":"user","content":"three"}`, string(env.Chat[2]))
}

func TestAttachChatCounts(t *testing.T) {
	// N valid and M invalid interleaved at varying positions: exactly N survive.
	var lines []string
	valid := 0
	for i := range 20 {
		if i%3 == 0 {
			lines = append(lines, "not-json-"+fmt.Sprint(i))
			continue
		}
		lines = append(lines, fmt.Sprintf(`{"idx":%d}`, i))
		valid++
	}
	path := writeTranscript(t, lines...)

	env := Build([]byte(`{}`), "Stop", "app")
	env.AttachChat(path)
	require.Len(t, env.Chat, valid)

	// Order preserved: idx values strictly increase.
	lastIdx := -1
	for _, record := range env.Chat {
		var entry struct {
			Idx int `json:"idx"`
		}
		require.NoError(t, json.Unmarshal(record, &entry))
		require.Greater(t, entry.Idx, lastIdx)
		lastIdx = entry.Idx
	}
}

func TestAttachChatMissingFile(t *testing.T) {
	env := Build([]byte(`{}`), "Stop", "app")
	env.AttachChat(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Nil(t, env.Chat)
}

func TestAttachChatEmptyPath(t *testing.T) {
	env := Build([]byte(`{}`), "Stop", "app")
	env.AttachChat("")
	require.Nil(t, env.Chat)
}

func TestAttachChatBlankLinesIgnored(t *testing.T) {
	path := writeTranscript(t, `{"a":1}`, "", "   ", `{"b":2}`)
	env := Build([]byte(`{}`), "Stop", "app")
	env.AttachChat(path)
	require.Len(t, env.Chat, 2)
}

func TestAttachChatHandlesOversizedLines(t *testing.T) {
	// Well past the default bufio.Scanner token limit.
	big := fmt.Sprintf(`{"content":%q}`, strings.Repeat("x", 128*1024))
	path := writeTranscript(t, `{"a":1}`, big, `{"b":2}`)

	env := Build([]byte(`{}`), "Stop", "app")
	env.AttachChat(path)
	require.Len(t, env.Chat, 3)
	require.Equal(t, big, string(env.Chat[1]))
}

func TestAttachChatNoTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`+"\n"+`{"b":2}`), 0o600))

	env := Build([]byte(`{}`), "Stop", "app")
	env.AttachChat(path)
	require.Len(t, env.Chat, 2)
}
