package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/beacon/internal/models"
	"github.com/dotcommander/beacon/internal/output"
	"github.com/dotcommander/beacon/internal/store"
)

func NewJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the local delivery journal",
	}

	cmd.AddCommand(newJournalListCmd())
	cmd.AddCommand(newJournalTailCmd())
	cmd.AddCommand(newJournalStatsCmd())
	cmd.AddCommand(newJournalPruneCmd())

	namespaceIndex(cmd)
	return cmd
}

func newJournalListCmd() *cobra.Command {
	var (
		session    string
		eventType  string
		sourceApp  string
		failedOnly bool
		limit      int
		since      int64
		asc        bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List delivery attempts (filterable)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var deliveries []*models.Delivery
			if err := withJournal(func(db *DB) error {
				d, err := store.ListDeliveries(db, store.ListDeliveriesParams{
					SessionID:  session,
					EventType:  eventType,
					SourceApp:  sourceApp,
					FailedOnly: failedOnly,
					SinceID:    since,
					Limit:      limit,
					Desc:       !asc,
				})
				if err != nil {
					return err
				}
				deliveries = d
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Session    string             `json:"session,omitempty"`
				EventType  string             `json:"event_type,omitempty"`
				Since      int64              `json:"since_id,omitempty"`
				Count      int                `json:"count"`
				Deliveries []*models.Delivery `json:"deliveries"`
			}
			return output.PrintSuccess(resp{
				Session:    session,
				EventType:  eventType,
				Since:      since,
				Count:      len(deliveries),
				Deliveries: deliveries,
			})
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "Filter by session id")
	cmd.Flags().StringVar(&eventType, "event-type", "", "Filter by hook event type")
	cmd.Flags().StringVar(&sourceApp, "source-app", "", "Filter by source application")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only failed deliveries")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max deliveries (<= 1000)")
	cmd.Flags().Int64Var(&since, "since-id", 0, "Only deliveries with rowid > since-id")
	cmd.Flags().BoolVar(&asc, "asc", false, "Sort oldest first (default newest first)")

	return cmd
}

func newJournalTailCmd() *cobra.Command {
	var (
		session    string
		eventType  string
		failedOnly bool
		limit      int
		since      int64
		interval   time.Duration
		once       bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Continuously poll and print new delivery attempts as JSON Lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Start from the journal head unless the caller pinned a cursor;
			// dumping the whole history on every tail is rarely wanted.
			if since == 0 && !once {
				_ = withJournal(func(db *DB) error {
					latest, err := store.ListDeliveries(db, store.ListDeliveriesParams{Limit: 1, Desc: true})
					if err == nil && len(latest) > 0 {
						since = latest[0].RowID
					}
					return nil
				})
			}

			for {
				var deliveries []*models.Delivery
				if err := withJournal(func(db *DB) error {
					d, err := store.ListDeliveries(db, store.ListDeliveriesParams{
						SessionID:  session,
						EventType:  eventType,
						FailedOnly: failedOnly,
						SinceID:    since,
						Limit:      limit,
						Desc:       false,
					})
					if err != nil {
						return err
					}
					deliveries = d
					return nil
				}); err != nil {
					return err
				}

				for _, d := range deliveries {
					if d.RowID > since {
						since = d.RowID
					}
					// JSONL: one delivery per line, raw record.
					if err := output.Print(d); err != nil {
						return err
					}
				}

				if once {
					return nil
				}
				time.Sleep(interval)
			}
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "Filter by session id")
	cmd.Flags().StringVar(&eventType, "event-type", "", "Filter by hook event type")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only failed deliveries")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max deliveries per poll (<= 1000)")
	cmd.Flags().Int64Var(&since, "since-id", 0, "Only deliveries with rowid > since-id")
	cmd.Flags().DurationVar(&interval, "interval", 1*time.Second, "Poll interval")
	cmd.Flags().BoolVar(&once, "once", false, "Fetch once and exit")

	return cmd
}

func newJournalStatsCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize delivery success and failure counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats models.DeliveryStats
			if err := withJournal(func(db *DB) error {
				s, err := store.CountDeliveries(db, session)
				if err != nil {
					return err
				}
				stats = s
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Session string               `json:"session,omitempty"`
				Stats   models.DeliveryStats `json:"stats"`
			}
			return output.PrintSuccess(resp{Session: session, Stats: stats})
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "Scope counts to one session id")

	return cmd
}

func newJournalPruneCmd() *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete journal rows older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			var deleted int64
			if err := withJournal(func(db *DB) error {
				n, err := store.PruneDeliveries(db, olderThanDays)
				if err != nil {
					return err
				}
				deleted = n
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Deleted       int64 `json:"deleted"`
				OlderThanDays int   `json:"older_than_days"`
			}
			return output.PrintSuccess(resp{Deleted: deleted, OlderThanDays: olderThanDays})
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 30, "Retention window in days")

	return cmd
}
