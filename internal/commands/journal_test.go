package commands

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/beacon/internal/models"
	"github.com/dotcommander/beacon/internal/store"
)

func requireFlagExists(t *testing.T, cmd *cobra.Command, name string) {
	t.Helper()
	f := cmd.Flags().Lookup(name)
	require.NotNil(t, f)
}

func TestNewJournalCmd_HasExpectedSubcommands(t *testing.T) {
	cmd := NewJournalCmd()
	require.Equal(t, "journal", cmd.Use)
	require.Equal(t, "Inspect the local delivery journal", cmd.Short)

	for _, name := range []string{"list", "tail", "stats", "prune"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		require.NotNil(t, sub)
		require.Equal(t, name, sub.Name())
	}
}

func TestJournalFlagSetup(t *testing.T) {
	list := newJournalListCmd()
	requireFlagExists(t, list, "session")
	requireFlagExists(t, list, "event-type")
	requireFlagExists(t, list, "source-app")
	requireFlagExists(t, list, "failed")
	requireFlagExists(t, list, "limit")
	requireFlagExists(t, list, "since-id")

	tail := newJournalTailCmd()
	requireFlagExists(t, tail, "interval")
	requireFlagExists(t, tail, "once")

	prune := newJournalPruneCmd()
	requireFlagExists(t, prune, "older-than-days")
}

func TestJournalPruneCmd_RejectsZeroRetention(t *testing.T) {
	t.Setenv("BEACON_JOURNAL_PATH", filepath.Join(t.TempDir(), "journal.db"))

	cmd := newJournalPruneCmd()
	require.NoError(t, cmd.Flags().Set("older-than-days", "0"))

	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.EqualError(t, err, "error already printed")
	require.IsType(t, printedError{}, err)
}

func TestJournalListCmd_ReadsJournaledDeliveries(t *testing.T) {
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	t.Setenv("BEACON_JOURNAL_PATH", journalPath)

	db, err := store.InitJournalWithPath(journalPath)
	require.NoError(t, err)
	require.NoError(t, store.RecordDelivery(db, &models.Delivery{
		SessionID: "sess-1",
		EventType: models.EventStop,
		SourceApp: "demo-app",
		URL:       "http://localhost:4000/events",
		Delivered: true,
	}))
	require.NoError(t, db.Close())

	cmd := newJournalListCmd()
	require.NoError(t, cmd.Flags().Set("session", "sess-1"))
	require.NoError(t, cmd.RunE(cmd, nil))
}
