package envelope

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
)

// AttachChat enriches the envelope with the parsed chat transcript at path.
// The transcript is JSONL: each line is independently parsed as one record,
// lines that fail to parse are dropped, and file order is preserved. Any I/O
// error degrades to whatever was read so far; an unreadable transcript never
// aborts the envelope.
func (e *Envelope) AttachChat(path string) {
	if path == "" {
		return
	}
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the hook payload's transcript_path
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	chat := readChatLines(f)
	if len(chat) > 0 {
		e.Chat = chat
	}
}

// readChatLines scans JSONL records from r. bufio.Reader.ReadBytes is used
// instead of a Scanner because transcript lines routinely exceed the default
// Scanner token limit.
func readChatLines(r io.Reader) []json.RawMessage {
	var chat []json.RawMessage
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 && json.Valid(trimmed) {
			record := make(json.RawMessage, len(trimmed))
			copy(record, trimmed)
			chat = append(chat, record)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Partial reads keep what parsed so far.
				return chat
			}
			return chat
		}
	}
}
