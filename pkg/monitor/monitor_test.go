package monitor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
	"igmonitor/pkg/state"
)

// fakeFetcher serves canned items per username
type fakeFetcher struct {
	items map[string][]models.ContentItem
	errs  map[string]error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, account models.Account, maxItems int) (*models.FetchResult, error) {
	f.calls++
	if err := f.errs[account.Username]; err != nil {
		return nil, err
	}
	return &models.FetchResult{
		Profile: models.Profile{Username: account.Username},
		Items:   f.items[account.Username],
	}, nil
}

// fakeProcessor records processed IDs and fails the configured ones
type fakeProcessor struct {
	failIDs   map[string]error
	flagIDs   map[string]bool
	processed []string
}

func (p *fakeProcessor) Process(ctx context.Context, item models.ContentItem) (*models.ProcessedResult, error) {
	if err := p.failIDs[item.ID]; err != nil {
		return nil, err
	}
	p.processed = append(p.processed, item.ID)
	return &models.ProcessedResult{
		Item:       item,
		Flagged:    p.flagIDs[item.ID],
		FlagReason: "",
	}, nil
}

type fakeNotifier struct {
	calls int
	err   error
	last  *models.RunSummary
}

func (n *fakeNotifier) SendReport(ctx context.Context, summary *models.RunSummary) error {
	n.calls++
	n.last = summary
	return n.err
}

func newRunner(t *testing.T, fetcher Fetcher, processor Processor, notifier Notifier, opts Options) (*Runner, *state.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := state.Load(path)
	require.NoError(t, err)
	return NewRunner(fetcher, processor, notifier, store, opts, logger.Nop()), store, path
}

func TestRunCommitsProcessedItems(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]models.ContentItem{
		"alice": {post("p3"), post("p2"), post("p1")},
	}}
	processor := &fakeProcessor{flagIDs: map[string]bool{"p2": true}}
	notifier := &fakeNotifier{}

	runner, _, path := newRunner(t, fetcher, processor, notifier, Options{})

	summary, err := runner.Run(context.Background(), []models.Account{{Username: "alice"}})
	require.NoError(t, err)

	require.Len(t, summary.Accounts, 1)
	acct := summary.Accounts[0]
	assert.Equal(t, models.StatusDone, acct.Status)
	assert.Equal(t, 3, acct.Fetched)
	assert.Equal(t, 3, acct.New)
	assert.Equal(t, 3, acct.Processed)
	assert.Equal(t, 1, acct.Flagged)
	assert.Equal(t, []string{"p3", "p2", "p1"}, processor.processed)

	// State was persisted: a fresh load sees everything as committed
	reloaded, err := state.Load(path)
	require.NoError(t, err)
	assert.False(t, reloaded.IsNew("alice", models.KindPost, "p1"))
	assert.False(t, reloaded.IsNew("alice", models.KindPost, "p2"))
	assert.False(t, reloaded.IsNew("alice", models.KindPost, "p3"))

	assert.Equal(t, 1, notifier.calls)
}

func TestSecondRunProcessesNothing(t *testing.T) {
	items := map[string][]models.ContentItem{"alice": {post("p1"), post("p2")}}

	fetcher := &fakeFetcher{items: items}
	processor := &fakeProcessor{}
	runner, store, path := newRunner(t, fetcher, processor, nil, Options{})

	_, err := runner.Run(context.Background(), []models.Account{{Username: "alice"}})
	require.NoError(t, err)
	require.Len(t, processor.processed, 2)

	// Same fetch on a later run: nothing is new
	store2, err := state.Load(path)
	require.NoError(t, err)
	processor2 := &fakeProcessor{}
	runner2 := NewRunner(&fakeFetcher{items: items}, processor2, nil, store2, Options{}, logger.Nop())

	summary, err := runner2.Run(context.Background(), []models.Account{{Username: "alice"}})
	require.NoError(t, err)
	assert.Empty(t, processor2.processed)
	assert.Equal(t, 0, summary.Accounts[0].New)
	_ = store
}

func TestFailedItemIsNotCommitted(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]models.ContentItem{
		"alice": {post("p3"), post("p2"), post("p1")},
	}}
	processor := &fakeProcessor{failIDs: map[string]error{
		"p2": errors.New(errors.ErrorTypeUpload, "drive unavailable"),
	}}

	runner, store, _ := newRunner(t, fetcher, processor, nil, Options{})

	summary, err := runner.Run(context.Background(), []models.Account{{Username: "alice"}})
	require.NoError(t, err)

	acct := summary.Accounts[0]
	assert.Equal(t, 2, acct.Processed)
	assert.Len(t, acct.ItemErrs, 1)

	// The failed item stays unmarked and retries next run; the items
	// around it were still processed and committed
	assert.True(t, store.IsNew("alice", models.KindPost, "p2"))
	assert.False(t, store.IsNew("alice", models.KindPost, "p1"))
	assert.False(t, store.IsNew("alice", models.KindPost, "p3"))
}

func TestAccountFailureIsIsolated(t *testing.T) {
	fetcher := &fakeFetcher{
		items: map[string][]models.ContentItem{
			"bob": {{ID: "b1", Kind: models.KindPost, Username: "bob"}},
		},
		errs: map[string]error{
			"alice": errors.New(errors.ErrorTypeRateLimit, "too many requests").WithCode(429),
		},
	}
	processor := &fakeProcessor{}

	runner, store, _ := newRunner(t, fetcher, processor, nil, Options{})

	summary, err := runner.Run(context.Background(), []models.Account{
		{Username: "alice"},
		{Username: "bob"},
	})
	require.NoError(t, err)

	require.Len(t, summary.Accounts, 2)
	assert.Equal(t, models.StatusFailed, summary.Accounts[0].Status)
	require.Error(t, summary.Accounts[0].Err)
	assert.True(t, errors.IsType(summary.Accounts[0].Err, errors.ErrorTypeRateLimit))

	// bob was still attempted and committed
	assert.Equal(t, models.StatusDone, summary.Accounts[1].Status)
	assert.Equal(t, []string{"b1"}, processor.processed)
	assert.False(t, store.IsNew("bob", models.KindPost, "b1"))
}

func TestDryRunSkipsProcessingAndCommit(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]models.ContentItem{
		"alice": {post("p1"), post("p2")},
	}}
	processor := &fakeProcessor{}
	notifier := &fakeNotifier{}

	runner, store, path := newRunner(t, fetcher, processor, notifier, Options{DryRun: true})

	summary, err := runner.Run(context.Background(), []models.Account{{Username: "alice"}})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Accounts[0].New)
	assert.Empty(t, processor.processed)
	assert.True(t, store.IsNew("alice", models.KindPost, "p1"))
	assert.Equal(t, 0, notifier.calls)

	// Dry run never touches the state file
	_, statErr := state.Load(path)
	require.NoError(t, statErr)
	reloaded, _ := state.Load(path)
	assert.Empty(t, reloaded.Usernames())
}

func TestMaxItemsCapsNewItems(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]models.ContentItem{
		"alice": {post("p1"), post("p2"), post("p3")},
	}}
	processor := &fakeProcessor{}

	runner, _, _ := newRunner(t, fetcher, processor, nil, Options{MaxItems: 2})

	summary, err := runner.Run(context.Background(), []models.Account{{Username: "alice"}})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Accounts[0].New)
	assert.Equal(t, []string{"p1", "p2"}, processor.processed)
}

func TestNotifierFailureIsNonFatal(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]models.ContentItem{
		"alice": {post("p1")},
	}}
	notifier := &fakeNotifier{err: errors.New(errors.ErrorTypeNotification, "smtp down")}

	runner, store, _ := newRunner(t, fetcher, &fakeProcessor{}, notifier, Options{})

	_, err := runner.Run(context.Background(), []models.Account{{Username: "alice"}})
	require.NoError(t, err)

	// Commit happened despite the notification failure
	assert.False(t, store.IsNew("alice", models.KindPost, "p1"))
	assert.Equal(t, 1, notifier.calls)
}

func TestCancellationBetweenAccounts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fetcher := &fakeFetcher{items: map[string][]models.ContentItem{
		"alice": {post("p1")},
		"bob":   {{ID: "b1", Kind: models.KindPost, Username: "bob"}},
	}}
	processor := &fakeProcessor{}

	runner, store, _ := newRunner(t, fetcher, processor, nil, Options{})

	// Cancel as soon as the first account's item is processed
	cancelingProcessor := processorFunc(func(c context.Context, item models.ContentItem) (*models.ProcessedResult, error) {
		res, err := processor.Process(c, item)
		cancel()
		return res, err
	})
	runner.processor = cancelingProcessor

	summary, err := runner.Run(ctx, []models.Account{{Username: "alice"}, {Username: "bob"}})
	assert.ErrorIs(t, err, context.Canceled)

	// alice's commit survived the interruption; bob was never reached
	require.Len(t, summary.Accounts, 1)
	assert.False(t, store.IsNew("alice", models.KindPost, "p1"))
	assert.True(t, store.IsNew("bob", models.KindPost, "b1"))
}

type processorFunc func(ctx context.Context, item models.ContentItem) (*models.ProcessedResult, error)

func (f processorFunc) Process(ctx context.Context, item models.ContentItem) (*models.ProcessedResult, error) {
	return f(ctx, item)
}
