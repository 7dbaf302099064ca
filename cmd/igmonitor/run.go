package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"igmonitor/pkg/analyzer"
	"igmonitor/pkg/auth"
	"igmonitor/pkg/config"
	"igmonitor/pkg/drive"
	"igmonitor/pkg/emailer"
	"igmonitor/pkg/instagram"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
	"igmonitor/pkg/monitor"
	"igmonitor/pkg/pipeline"
	"igmonitor/pkg/report"
	"igmonitor/pkg/state"
	"igmonitor/pkg/stats"
	"igmonitor/pkg/storage"
)

var (
	// Run command flags
	accountsFile string
	stateFile    string
	maxItems     int
	dryRun       bool
	noEmail      bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one monitoring pass over all configured accounts",
	Long: `Run one monitoring pass: fetch recent posts and stories for every account
in the accounts file, process the items not seen on a previous run, and
deliver the report.

Each account is handled in turn with a randomized pause in between. An item
counts as seen only after its analysis and upload completed, so failures are
retried on the next run.`,
	Example: `  # Normal scheduled run
  igmonitor run

  # See what would be processed without touching anything
  igmonitor run --dry-run

  # Bound the catch-up after downtime
  igmonitor run --max-items 10`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&accountsFile, "accounts", "", "accounts file (default accounts.json)")
	runCmd.Flags().StringVar(&stateFile, "state-file", "", "state file (default state.json)")
	runCmd.Flags().IntVar(&maxItems, "max-items", 0, "max new items per account, 0 for unlimited")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and filter only, no processing or state changes")
	runCmd.Flags().BoolVar(&noEmail, "no-email", false, "skip the report email")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, config.Flags{
		AccountsFile: accountsFile,
		StateFile:    stateFile,
		MaxItems:     maxItems,
		LogLevel:     effectiveLogLevel(),
	})
	if err != nil {
		return err
	}

	if err := logger.Initialize(&logger.Config{Level: cfg.Logging.Level, File: cfg.Logging.File}); err != nil {
		return err
	}
	log := logger.GetLogger()

	// The accounts file is the only input whose absence aborts the run
	accounts, err := models.LoadAccounts(cfg.Monitor.AccountsFile)
	if err != nil {
		return err
	}
	log.WithField("accounts", len(accounts)).Info("loaded accounts to monitor")

	fillSessionFromStore(cfg, log)

	needsStories := false
	for _, a := range accounts {
		if a.IncludeStories {
			needsStories = true
		}
	}
	if needsStories && cfg.Instagram.SessionID == "" {
		log.Warn("stories requested but no session configured, run 'igmonitor auth login'")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := state.Load(cfg.Monitor.StateFile)
	if err != nil {
		// Corrupt state recovers to empty; this run reprocesses everything once
		log.WithError(err).Warn("state file unreadable, starting from empty state")
	}

	tempStore, err := storage.NewManager(cfg.Monitor.TempDir)
	if err != nil {
		return err
	}

	client := instagram.NewClient(cfg.Instagram, log)
	fetcher := instagram.NewFetcher(client, tempStore, instagram.FetcherOptions{
		StoryDelayMin: cfg.Monitor.StoryDelayMin,
		StoryDelayMax: cfg.Monitor.StoryDelayMax,
	}, log)

	gemini := analyzer.New(cfg.Gemini, log)

	uploader, err := buildUploader(ctx, cfg, log)
	if err != nil {
		return err
	}

	var processor *pipeline.Pipeline
	if uploader != nil {
		processor = pipeline.New(gemini, uploader, tempStore, log)
	} else {
		processor = pipeline.New(gemini, nil, tempStore, log)
	}

	renderer, err := report.NewRenderer()
	if err != nil {
		return err
	}
	notifier := &runNotifier{
		renderer:   renderer,
		uploader:   uploader,
		resultsDir: cfg.Monitor.ResultsDir,
		logger:     log,
	}
	if cfg.SMTP.Enabled && !noEmail {
		notifier.sender = emailer.NewSender(cfg.SMTP, log)
		notifier.subscribersFile = cfg.SMTP.SubscribersFile
	}

	runner := monitor.NewRunner(fetcher, processor, notifier, store, monitor.Options{
		MaxItems:        cfg.Monitor.MaxItems,
		DryRun:          dryRun,
		AccountDelayMin: cfg.Monitor.AccountDelayMin,
		AccountDelayMax: cfg.Monitor.AccountDelayMax,
	}, log)

	summary, runErr := runner.Run(ctx, accounts)

	writeResults(summary, cfg.Monitor.ResultsDir, log)

	for _, account := range summary.Accounts {
		if err := tempStore.Cleanup(account.Account.Username); err != nil {
			log.WithError(err).WithField("username", account.Account.Username).Warn("temp cleanup failed")
		}
	}

	recordStats(cfg.Monitor.StatsDB, summary, log)

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}

	fmt.Printf("Processed %d new items across %d accounts (%d flagged)\n",
		summary.TotalProcessed(), len(summary.Accounts), summary.TotalFlagged())
	return nil
}

// fillSessionFromStore copies stored session credentials into the config
// when the environment and config file supplied none
func fillSessionFromStore(cfg *config.Config, log logger.Logger) {
	if cfg.Instagram.SessionID != "" && cfg.Instagram.CSRFToken != "" {
		return
	}
	manager, err := auth.NewManager()
	if err != nil {
		return
	}
	session, err := manager.Load("")
	if err != nil {
		return
	}
	cfg.Instagram.SessionID = session.SessionID
	cfg.Instagram.CSRFToken = session.CSRFToken
	if session.UserAgent != "" {
		cfg.Instagram.UserAgent = session.UserAgent
	}
	log.Info("using stored session credentials")
}

// buildUploader creates the Drive uploader when Drive is enabled and fully
// configured. A missing root folder disables uploads instead of failing the
// whole run.
func buildUploader(ctx context.Context, cfg *config.Config, log logger.Logger) (*drive.Uploader, error) {
	if !cfg.Drive.Enabled {
		return nil, nil
	}
	if cfg.Drive.RootFolderID == "" {
		log.Warn("drive upload disabled, no root folder configured")
		return nil, nil
	}
	uploader, err := drive.NewUploader(ctx, cfg.Drive, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize drive uploader: %w", err)
	}
	return uploader, nil
}

// runNotifier delivers the end-of-run report: render HTML, archive a copy to
// Drive next to the run's media, email the subscribers
type runNotifier struct {
	renderer        *report.Renderer
	uploader        *drive.Uploader
	sender          *emailer.Sender
	subscribersFile string
	resultsDir      string
	logger          logger.Logger
}

func (n *runNotifier) SendReport(ctx context.Context, summary *models.RunSummary) error {
	path, err := n.renderer.Render(summary, n.resultsDir)
	if err != nil {
		return err
	}
	n.logger.WithField("path", path).Info("report written")

	if n.uploader != nil {
		for _, account := range summary.Accounts {
			if account.Processed == 0 {
				continue
			}
			if _, err := n.uploader.UploadReport(ctx, path, account.Account.Username, summary.StartedAt); err != nil {
				n.logger.WithError(err).WithField("username", account.Account.Username).Warn("report upload failed")
			}
		}
	}

	if n.sender == nil {
		return nil
	}

	subscribers, err := emailer.LoadSubscribers(n.subscribersFile)
	if err != nil {
		return err
	}
	if len(subscribers) == 0 {
		n.logger.Warn("no subscribers configured, skipping email")
		return nil
	}

	html, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Instagram Monitor Report - %s", summary.StartedAt.Format("2006-01-02"))
	if flagged := summary.TotalFlagged(); flagged > 0 {
		subject = fmt.Sprintf("[%d FLAGGED] %s", flagged, subject)
	}
	return n.sender.Send(subscribers, subject, string(html))
}

// accountResultFile is the per-account JSON written into the results
// directory after each run
type accountResultFile struct {
	Username  string                   `json:"username"`
	Status    models.AccountStatus     `json:"status"`
	Profile   models.Profile           `json:"profile"`
	Fetched   int                      `json:"fetched"`
	New       int                      `json:"new"`
	Processed int                      `json:"processed"`
	Flagged   int                      `json:"flagged"`
	Results   []models.ProcessedResult `json:"results"`
	Error     string                   `json:"error,omitempty"`
	CheckedAt time.Time                `json:"checked_at"`
}

func writeResults(summary *models.RunSummary, dir string, log logger.Logger) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Warn("failed to create results directory")
		return
	}

	for _, account := range summary.Accounts {
		out := accountResultFile{
			Username:  account.Account.Username,
			Status:    account.Status,
			Profile:   account.Profile,
			Fetched:   account.Fetched,
			New:       account.New,
			Processed: account.Processed,
			Flagged:   account.Flagged,
			Results:   account.Results,
			CheckedAt: summary.FinishedAt,
		}
		if account.Err != nil {
			out.Error = account.Err.Error()
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.WithError(err).WithField("username", out.Username).Warn("failed to marshal account result")
			continue
		}
		path := filepath.Join(dir, out.Username+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.WithError(err).WithField("username", out.Username).Warn("failed to write account result")
		}
	}
}

func recordStats(dbPath string, summary *models.RunSummary, log logger.Logger) {
	db, err := stats.Open(dbPath)
	if err != nil {
		log.WithError(err).Warn("stats database unavailable")
		return
	}
	defer db.Close()

	if err := db.Record(context.Background(), summary); err != nil {
		log.WithError(err).Warn("failed to record run statistics")
	}
}
