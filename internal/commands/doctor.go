package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/beacon/internal/app"
	"github.com/dotcommander/beacon/internal/hookconfig"
	"github.com/dotcommander/beacon/internal/hookenv"
	"github.com/dotcommander/beacon/internal/models"
	"github.com/dotcommander/beacon/internal/notify"
	"github.com/dotcommander/beacon/internal/output"
	"github.com/dotcommander/beacon/internal/store"
)

func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check environment detection, server URL resolution, and journal health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, _ := os.Getwd()
			if dir, _ := cmd.Flags().GetString("target"); dir != "" {
				cwd = dir
			}

			kind := hookenv.Resolve()
			configPath := hookconfig.DefaultPath(cwd)
			cfg := hookconfig.Load(configPath)
			configFound := false
			if _, err := os.Stat(configPath); err == nil {
				configFound = true
			}

			journalPath, journalSource, err := app.ResolveJournalPathDetailed()
			if err != nil {
				return cmdErr(err)
			}

			var (
				journalOK  bool
				journalErr string
				queryOK    bool
				queryErr   string
				stats      *models.DeliveryStats
				diags      []store.Diagnostic

				schemaCurrent int64
				schemaLatest  int64
			)

			db, err := store.InitJournalWithPath(journalPath)
			if err != nil {
				journalErr = err.Error()
			} else {
				journalOK = true
				defer func() { _ = db.Close() }()
			}

			if journalOK {
				var one int
				if err := db.QueryRow("SELECT 1").Scan(&one); err != nil {
					queryErr = err.Error()
				} else {
					queryOK = true
				}
				if s, err := store.CountDeliveries(db, ""); err == nil {
					stats = &s
				}
				if cur, latest, err := store.SchemaVersion(db); err == nil {
					schemaCurrent, schemaLatest = cur, latest
				}
				if d, err := store.RunDiagnostics(db); err == nil {
					diags = d
				}
			} else {
				queryErr = "journal not available"
			}

			type engineInfo struct {
				Name      string `json:"name"`
				Available bool   `json:"available"`
			}
			engines := make([]engineInfo, 0, 3)
			for _, e := range notify.DefaultEngines() {
				engines = append(engines, engineInfo{Name: e.Name(), Available: e.Available()})
			}

			type resp struct {
				Environment   string                `json:"environment"`
				ConfigPath    string                `json:"config_path"`
				ConfigFound   bool                  `json:"config_found"`
				SourceApp     string                `json:"source_app"`
				ServerURL     string                `json:"server_url"`
				ResolvedURL   string                `json:"resolved_url"`
				TTSCandidates []string              `json:"tts_candidates"`
				JournalPath   string                `json:"journal_path"`
				JournalSource string                `json:"journal_source"`
				JournalOK     bool                  `json:"journal_ok"`
				JournalErr    string                `json:"journal_error,omitempty"`
				QueryOK       bool                  `json:"query_ok"`
				QueryErr      string                `json:"query_error,omitempty"`
				SchemaCurrent int64                 `json:"schema_current,omitempty"`
				SchemaLatest  int64                 `json:"schema_latest,omitempty"`
				Stats         *models.DeliveryStats `json:"stats,omitempty"`
				Diagnostics   []store.Diagnostic    `json:"diagnostics,omitempty"`
				Engines       []engineInfo          `json:"tts_engines"`
				Hint          string                `json:"hint,omitempty"`
			}

			hint := ""
			if !configFound {
				hint = "No hooks-config.json found. Run 'beacon hook install' in the project."
			} else if !journalOK {
				hint = "If this is running in a sandboxed environment, set journal_path to a writable location or use --journal-path."
			}

			return output.PrintSuccess(resp{
				Environment:   kind.String(),
				ConfigPath:    configPath,
				ConfigFound:   configFound,
				SourceApp:     cfg.SourceApp,
				ServerURL:     cfg.ServerURL,
				ResolvedURL:   hookenv.ResolveServerURL(cfg.ServerURL, kind),
				TTSCandidates: hookenv.CandidateBaseURLs(kind),
				JournalPath:   journalPath,
				JournalSource: journalSource,
				JournalOK:     journalOK,
				JournalErr:    journalErr,
				QueryOK:       queryOK,
				QueryErr:      queryErr,
				SchemaCurrent: schemaCurrent,
				SchemaLatest:  schemaLatest,
				Stats:         stats,
				Diagnostics:   diags,
				Engines:       engines,
				Hint:          hint,
			})
		},
	}

	cmd.Flags().String("target", "", "Project directory to inspect (default: current directory)")

	return cmd
}
