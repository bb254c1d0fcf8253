package guard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDangerousRemoval(t *testing.T) {
	cases := []struct {
		name    string
		command string
		want    bool
	}{
		{name: "recursive force", command: "rm -rf /tmp/x", want: true},
		{name: "force recursive", command: "rm -fr node_modules", want: true},
		{name: "flags inside larger cluster", command: "rm -vrf build", want: true},
		{name: "uppercase", command: "RM -RF /var", want: true},
		{name: "extra whitespace", command: "rm    -rf \t build", want: true},
		{name: "path before flags", command: "rm /srv/cache -rf", want: true},
		{name: "embedded in pipeline", command: "true && rm -rf dist", want: true},
		{name: "plain removal", command: "rm file.txt", want: false},
		{name: "recursive only", command: "rm -r old/", want: false},
		{name: "split flags", command: "rm -r -f sandbox", want: false},
		{name: "rm inside another word", command: "confirm -rf", want: false},
		{name: "unrelated command", command: "ls -la", want: false},
		{name: "empty", command: "", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DangerousRemoval(tc.command))
		})
	}
}

func TestSensitiveMarker(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{name: "api key assignment", input: "API_KEY=sk-12345", want: "api_key", found: true},
		{name: "password in prose", input: "the Password is hunter2", want: "password", found: true},
		{name: "token in json", input: `{"access_token":"abc"}`, want: "token", found: true},
		{name: "secret as prefix", input: "SECRETS_FILE=/etc/creds", want: "secret", found: true},
		{name: "clean output", input: "compiled 14 packages in 1.2s", want: "", found: false},
		{name: "empty", input: "", want: "", found: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			marker, found := SensitiveMarker(tc.input)
			require.Equal(t, tc.found, found)
			require.Equal(t, tc.want, marker)
		})
	}
}

func TestBlockErrorMessage(t *testing.T) {
	err := &BlockError{Command: "rm -rf /"}
	require.Contains(t, err.Error(), "rm -rf /")
	require.Contains(t, err.Error(), "blocked")
}
