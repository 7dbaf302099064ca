package report

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/errors"
	"igmonitor/pkg/models"
)

func sampleSummary() *models.RunSummary {
	return &models.RunSummary{
		StartedAt: time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC),
		Accounts: []models.AccountResult{
			{
				Account: models.Account{Username: "alice"},
				Profile: models.Profile{Username: "alice", FullName: "Alice Example", Followers: 1200, PostCount: 88},
				Status:    models.StatusDone,
				Fetched:   12,
				New:       2,
				Processed: 2,
				Flagged:   1,
				Results: []models.ProcessedResult{
					{
						Item: models.ContentItem{
							ID: "p_old", Kind: models.KindPost, Username: "alice",
							Caption:   "sunset",
							Timestamp: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
						},
					},
					{
						Item: models.ContentItem{
							ID: "p_new", Kind: models.KindPost, Username: "alice",
							Caption:   "you know what happens next",
							Timestamp: time.Date(2026, 8, 29, 1, 0, 0, 0, time.UTC),
							IsVideo:   true,
						},
						Transcript: "spoken threat",
						Flagged:    true,
						FlagReason: "threatening language",
					},
				},
			},
			{
				Account: models.Account{Username: "bob"},
				Status:  models.StatusFailed,
				Err:     errors.New(errors.ErrorTypeRateLimit, "too many requests"),
			},
		},
	}
}

func TestRenderWritesReport(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	path, err := renderer.Render(sampleSummary(), t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "@alice")
	assert.Contains(t, html, "FLAGGED: threatening language")
	assert.Contains(t, html, "spoken threat")
	assert.Contains(t, html, "1 flagged")
	assert.Contains(t, html, "Account skipped")
	assert.Contains(t, path, "report_2026-08-29_060000.html")
}

func TestRenderListsFlaggedFirst(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	path, err := renderer.Render(sampleSummary(), t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)

	// the flagged item (p_new) renders before the unflagged one
	flaggedPos := strings.Index(html, "you know what happens next")
	plainPos := strings.Index(html, "sunset")
	require.GreaterOrEqual(t, flaggedPos, 0)
	require.GreaterOrEqual(t, plainPos, 0)
	assert.Less(t, flaggedPos, plainPos)
}

func TestRenderDryRunBanner(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	summary := sampleSummary()
	summary.DryRun = true

	path, err := renderer.Render(summary, t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DRY RUN")
}

func TestRenderEscapesCaptions(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	summary := sampleSummary()
	summary.Accounts[0].Results[0].Item.Caption = `<script>alert("x")</script>`

	path, err := renderer.Render(summary, t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "<script>alert")
}
