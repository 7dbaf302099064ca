// Package monitor drives the per-account pipeline: fetch, filter against the
// state store, process new items, commit. Accounts run sequentially with a
// randomized delay between them; one account's failure never prevents the
// next from being attempted.
package monitor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
	"igmonitor/pkg/state"
)

// Options controls a run
type Options struct {
	// MaxItems caps new items per account, applied after filtering.
	// Zero means no cap.
	MaxItems int
	// DryRun fetches and filters but skips processing, commit and save
	DryRun bool
	// AccountDelayMin/Max bound the randomized pause between accounts
	AccountDelayMin time.Duration
	AccountDelayMax time.Duration
}

// Runner owns the state store for the duration of a run and coordinates the
// external collaborators. Single-threaded: the store has exactly one writer.
type Runner struct {
	fetcher   Fetcher
	processor Processor
	notifier  Notifier
	store     *state.Store
	opts      Options
	logger    logger.Logger
}

// NewRunner creates a run coordinator. notifier may be nil when reporting is
// disabled.
func NewRunner(fetcher Fetcher, processor Processor, notifier Notifier, store *state.Store, opts Options, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		fetcher:   fetcher,
		processor: processor,
		notifier:  notifier,
		store:     store,
		opts:      opts,
		logger:    log,
	}
}

// Run processes every account in order and returns the run summary. The
// returned error is non-nil only for run-level failures (context
// cancellation); per-account and per-item failures are recorded in the
// summary.
func (r *Runner) Run(ctx context.Context, accounts []models.Account) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		StartedAt: time.Now().UTC(),
		DryRun:    r.opts.DryRun,
	}

	r.logger.InfoWithFields("monitor run starting", map[string]interface{}{
		"accounts": len(accounts),
		"dry_run":  r.opts.DryRun,
	})

	for i, account := range accounts {
		result := r.processAccount(ctx, account)
		summary.Accounts = append(summary.Accounts, result)

		if err := ctx.Err(); err != nil {
			// Interrupted between accounts: committed state is already
			// durable, uncommitted items retry next run
			summary.FinishedAt = time.Now().UTC()
			return summary, err
		}

		if i < len(accounts)-1 {
			if err := r.interAccountDelay(ctx); err != nil {
				summary.FinishedAt = time.Now().UTC()
				return summary, err
			}
		}
	}

	// Per-account saves already ran; a final snapshot guarantees nothing
	// committed in memory is left unpersisted
	if !r.opts.DryRun {
		if err := r.store.Save(); err != nil {
			r.logger.WithError(err).Error("final state save failed")
		}
	}

	summary.FinishedAt = time.Now().UTC()

	r.notify(ctx, summary)

	r.logger.InfoWithFields("monitor run complete", map[string]interface{}{
		"accounts":  len(summary.Accounts),
		"processed": summary.TotalProcessed(),
		"flagged":   summary.TotalFlagged(),
	})

	return summary, nil
}

// processAccount walks one account through
// FETCHING -> FILTERING -> PROCESSING -> COMMITTING -> DONE,
// with FAILED reachable from any phase.
func (r *Runner) processAccount(ctx context.Context, account models.Account) models.AccountResult {
	result := models.AccountResult{Account: account}
	log := r.logger.WithField("username", account.Username)

	// FETCHING
	fetched, err := r.fetcher.Fetch(ctx, account, 0)
	if err != nil {
		log.WithError(err).Error("fetch failed, skipping account")
		result.Status = models.StatusFailed
		result.Err = fmt.Errorf("fetch %s: %w", account.Username, err)
		return result
	}
	result.Profile = fetched.Profile
	result.Fetched = len(fetched.Items)

	// FILTERING
	fresh := FilterNew(r.store, account.Username, fetched.Items, r.opts.MaxItems)
	result.New = len(fresh)

	log.InfoWithFields("filtered account content", map[string]interface{}{
		"fetched": result.Fetched,
		"new":     result.New,
	})

	if r.opts.DryRun {
		log.Info("dry run: skipping processing and commit")
		result.Status = models.StatusDone
		return result
	}

	// PROCESSING + COMMITTING, item by item. An item is marked seen if and
	// only if its processing completed without error; failed items stay
	// unmarked and retry on the next scheduled run.
	for _, item := range fresh {
		processed, err := r.processor.Process(ctx, item)
		if err != nil {
			log.WithError(err).WithFields(map[string]interface{}{
				"item": item.ID,
				"kind": string(item.Kind),
			}).Error("item processing failed, will retry next run")
			result.ItemErrs = append(result.ItemErrs, fmt.Errorf("item %s: %w", item.ID, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		r.store.MarkSeen(account.Username, item.Kind, item.ID)
		result.Processed++
		if processed.Flagged {
			result.Flagged++
		}
		result.Results = append(result.Results, *processed)
	}

	// Persist this account's commits before moving on, so a later crash
	// cannot lose them
	if result.Processed > 0 {
		if err := r.store.Save(); err != nil {
			log.WithError(err).Error("state save failed, committed items may reprocess next run")
			result.ItemErrs = append(result.ItemErrs, err)
		}
	}

	result.Status = models.StatusDone
	log.InfoWithFields("account complete", map[string]interface{}{
		"processed": result.Processed,
		"flagged":   result.Flagged,
		"failed":    len(result.ItemErrs),
	})

	return result
}

// interAccountDelay pauses a randomized interval between accounts to avoid
// looking like a bot. Honors context cancellation.
func (r *Runner) interAccountDelay(ctx context.Context) error {
	min, max := r.opts.AccountDelayMin, r.opts.AccountDelayMax
	if max <= 0 {
		return nil
	}
	delay := min
	if max > min {
		delay = min + time.Duration(rand.Int63n(int64(max-min)))
	}

	r.logger.DebugWithFields("waiting before next account", map[string]interface{}{
		"delay": delay,
	})

	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) notify(ctx context.Context, summary *models.RunSummary) {
	if r.notifier == nil || r.opts.DryRun {
		return
	}
	if err := r.notifier.SendReport(ctx, summary); err != nil {
		// Reports are best effort and never block state commit
		r.logger.WithError(err).Warn("report delivery failed")
	}
}
