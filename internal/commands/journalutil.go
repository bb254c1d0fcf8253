package commands

import (
	"database/sql"

	"github.com/dotcommander/beacon/internal/app"
	"github.com/dotcommander/beacon/internal/output"
	"github.com/dotcommander/beacon/internal/store"
)

// DB is an alias so command code doesn't need to import database/sql.
type DB = sql.DB

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// Intentionally hide the original error: the diagnostic output has
	// already been written by the time this bubbles up.
	return "error already printed"
}

func openJournal() (*DB, func(), error) {
	journalPath, err := app.GetJournalPath()
	if err != nil {
		return nil, nil, err
	}

	db, err := store.InitJournalWithPath(journalPath)
	if err != nil {
		return nil, nil, err
	}

	return db, func() { _ = db.Close() }, nil
}

func withJournal(fn func(db *DB) error) error {
	db, closeJournal, err := openJournal()
	if err != nil {
		return cmdErr(err)
	}
	defer closeJournal()

	if err := fn(db); err != nil {
		return cmdErr(err)
	}
	return nil
}

func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	_ = output.PrintError(err)
	return printedError{err: err}
}
