package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"example.com/coachsync/internal/domain"
	"example.com/coachsync/internal/observability"
	"example.com/coachsync/internal/provider/strava"
)

// fetchOverlap widens every lower time bound so activities landing right at
// the previous watermark are not missed between runs.
const fetchOverlap = time.Hour

// Mode selects what a run does.
type Mode string

const (
	// ModeDrain claims and processes eligible pending intents.
	ModeDrain Mode = "drain"
	// ModeBackfill enqueues safety-sweep intents for stale accounts first,
	// then drains. The net for missed real-time signals.
	ModeBackfill Mode = "backfill"
)

// RunOptions parameterize one scheduler-triggered run.
type RunOptions struct {
	Mode         Mode
	AccountID    string
	LookbackDays int
}

// Summary is the structured result returned to the scheduler trigger.
type Summary struct {
	Recovered            int  `json:"recovered_leases"`
	Drained              int  `json:"drained"`
	Completed            int  `json:"completed"`
	Failed               int  `json:"failed"`
	Fetched              int  `json:"fetched"`
	InWindow             int  `json:"in_window"`
	Upserted             int  `json:"upserted"`
	Matched              int  `json:"matched"`
	CreatedCalendarItems int  `json:"created_calendar_items"`
	RateLimited          bool `json:"rate_limited"`
}

// RunnerConfig bundles the runner tunables.
type RunnerConfig struct {
	BatchSize    int
	LeaseTimeout time.Duration
	MaxAttempts  int
	LookbackDays int
	PageSize     int
}

// Runner drives one cron-triggered pass over the intent queue: recover
// expired leases, claim a bounded batch, and push each intent through
// token refresh, fetch, ingest, and match. Safe to run concurrently with
// other runners; the claim protocol arbitrates ownership.
type Runner struct {
	intents     IntentStore
	connections ConnectionStore
	provider    Provider
	tokens      *TokenManager
	ingestor    *Ingestor
	matcher     *Matcher
	backoff     Backoff
	cfg         RunnerConfig
	logger      *log.Logger
	now         func() time.Time
}

// NewRunner constructs a Runner.
func NewRunner(intents IntentStore, connections ConnectionStore, provider Provider, tokens *TokenManager, ingestor *Ingestor, matcher *Matcher, backoff Backoff, cfg RunnerConfig) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	return &Runner{
		intents:     intents,
		connections: connections,
		provider:    provider,
		tokens:      tokens,
		ingestor:    ingestor,
		matcher:     matcher,
		backoff:     backoff,
		cfg:         cfg,
		logger:      log.New(log.Writer(), "[runner] ", log.LstdFlags|log.Lshortfile),
	}
}

// WithLogger overrides the runner's logger.
func (r *Runner) WithLogger(logger *log.Logger) *Runner {
	r.logger = logger
	return r
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Run executes one pass and returns the summary. Per-intent failures are
// tallied, not raised; the returned error aggregates only infrastructure
// failures (store unreachable and the like).
func (r *Runner) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	start := r.clock()
	var summary Summary
	var errs error

	lookbackDays := opts.LookbackDays
	if lookbackDays <= 0 {
		lookbackDays = r.cfg.LookbackDays
	}

	recovered, err := r.intents.RecoverLeases(ctx, r.clock())
	if err != nil {
		return summary, err
	}
	summary.Recovered = recovered
	if recovered > 0 {
		r.logger.Printf("recovered %d expired leases", recovered)
	}

	switch {
	case opts.Mode == ModeBackfill:
		if err := r.enqueueSweep(ctx, opts.AccountID, lookbackDays); err != nil {
			errs = errors.Join(errs, err)
		}
	case opts.AccountID != "":
		if _, err := r.intents.Enqueue(ctx, opts.AccountID, nil); err != nil {
			errs = errors.Join(errs, err)
		}
	}

	batch, err := r.intents.SelectBatch(ctx, r.clock(), r.cfg.BatchSize)
	if err != nil {
		return summary, errors.Join(errs, err)
	}

	for _, candidate := range batch {
		if ctx.Err() != nil {
			break
		}

		intent, err := r.intents.Claim(ctx, candidate.ID, r.cfg.LeaseTimeout)
		if errors.Is(err, domain.ErrNotClaimed) {
			// Another worker won the conditional update.
			continue
		}
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		summary.Drained++

		procErr := r.processIntent(ctx, intent, lookbackDays, &summary)
		if procErr == nil {
			if err := r.intents.MarkDone(ctx, intent.ID); err != nil {
				errs = errors.Join(errs, err)
				continue
			}
			if err := r.connections.TouchLastSync(ctx, intent.AccountID, r.clock()); err != nil {
				errs = errors.Join(errs, err)
			}
			summary.Completed++
			continue
		}

		if strava.IsRateLimited(procErr) {
			// Stop talking to the provider for this run. The current intent
			// is rescheduled, unclaimed intents stay PENDING.
			summary.RateLimited = true
			observability.RecordRateLimit()
			delay := r.backoff.Delay(intent.Attempts - 1)
			if err := r.intents.Reschedule(ctx, intent.ID, delay, procErr.Error()); err != nil {
				errs = errors.Join(errs, err)
			}
			r.logger.Printf("rate limited, aborting batch (intent=%s, retry in %s)", intent.ID, delay)
			break
		}

		summary.Failed++
		if intent.Attempts >= r.cfg.MaxAttempts {
			if err := r.intents.Fail(ctx, intent.ID, procErr.Error()); err != nil {
				errs = errors.Join(errs, err)
			}
			r.logger.Printf("intent %s failed terminally after %d attempts: %v", intent.ID, intent.Attempts, procErr)
			continue
		}

		delay := r.backoff.Delay(intent.Attempts - 1)
		if err := r.intents.Reschedule(ctx, intent.ID, delay, procErr.Error()); err != nil {
			errs = errors.Join(errs, err)
		}
		r.logger.Printf("intent %s attempt %d failed, retry in %s: %v", intent.ID, intent.Attempts, delay, procErr)
	}

	observability.RecordRun(summary.Drained, summary.Completed, summary.Failed, summary.Upserted, summary.Matched, summary.CreatedCalendarItems, r.clock().Sub(start))
	return summary, errs
}

// processIntent runs fetch → ingest → match for one claimed intent. Any
// returned error fails only this intent unless it is the rate-limit signal.
func (r *Runner) processIntent(ctx context.Context, intent *domain.SyncIntent, lookbackDays int, summary *Summary) error {
	conn, err := r.connections.Get(ctx, intent.AccountID)
	if err != nil {
		return fmt.Errorf("account %s: %w", intent.AccountID, err)
	}

	token, err := r.tokens.Valid(ctx, conn)
	if err != nil {
		return err
	}

	var activities []strava.Activity
	var after time.Time

	if intent.ExternalActivityID != nil {
		activity, err := r.provider.GetActivity(ctx, token, *intent.ExternalActivityID)
		if err != nil {
			return err
		}
		activities = []strava.Activity{activity}
	} else {
		after = r.lowerBound(conn, lookbackDays)
		activities, err = r.provider.ListActivities(ctx, token, after, r.cfg.PageSize)
		if err != nil {
			return err
		}
	}

	summary.Fetched += len(activities)

	for _, activity := range activities {
		if after.IsZero() || activity.StartDate.After(after) {
			summary.InWindow++
		}

		record, changed, err := r.ingestor.Ingest(ctx, intent.AccountID, activity)
		if err != nil {
			return err
		}
		if changed {
			summary.Upserted++
		}

		outcome, err := r.matcher.Match(ctx, record)
		if err != nil {
			return err
		}
		if outcome.Matched {
			summary.Matched++
		}
		if outcome.CreatedEntry {
			summary.CreatedCalendarItems++
		}
	}
	return nil
}

// lowerBound picks the fetch window start: the last successful sync when one
// exists, otherwise the configured lookback, both padded by the overlap.
func (r *Runner) lowerBound(conn *domain.Connection, lookbackDays int) time.Time {
	if conn.LastSyncAt != nil {
		return conn.LastSyncAt.Add(-fetchOverlap)
	}
	return r.clock().AddDate(0, 0, -lookbackDays).Add(-fetchOverlap)
}

// enqueueSweep creates safety-sweep intents for accounts with no recent
// sync. Dedupe in the store keeps it clear of intents already in flight.
func (r *Runner) enqueueSweep(ctx context.Context, accountID string, lookbackDays int) error {
	if accountID != "" {
		_, err := r.intents.Enqueue(ctx, accountID, nil)
		return err
	}

	cutoff := r.clock().AddDate(0, 0, -lookbackDays)
	stale, err := r.connections.ListStale(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	var errs error
	for _, conn := range stale {
		if _, err := r.intents.Enqueue(ctx, conn.AccountID, nil); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
