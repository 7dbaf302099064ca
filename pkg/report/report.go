// Package report renders a run's results as an HTML document suitable for
// email delivery and Drive archival. Flagged items are listed first.
package report

import (
	_ "embed"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"igmonitor/pkg/errors"
	"igmonitor/pkg/models"
)

//go:embed report.html.tmpl
var reportTemplate string

// AccountSection is one account's slice of the report
type AccountSection struct {
	Profile models.Profile
	Status  models.AccountStatus
	Fetched int
	New     int
	Items   []models.ProcessedResult
	Err     error
}

// Flagged returns the section's flagged items
func (s AccountSection) Flagged() []models.ProcessedResult {
	var out []models.ProcessedResult
	for _, item := range s.Items {
		if item.Flagged {
			out = append(out, item)
		}
	}
	return out
}

// reportData is the template context
type reportData struct {
	GeneratedAt  time.Time
	StartedAt    time.Time
	DryRun       bool
	Accounts     []AccountSection
	TotalNew     int
	TotalFlagged int
}

// Renderer renders run summaries to HTML files
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded template
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, err, "failed to parse report template")
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the report for summary into dir and returns the file path
func (r *Renderer) Render(summary *models.RunSummary, dir string) (string, error) {
	data := reportData{
		GeneratedAt: time.Now().UTC(),
		StartedAt:   summary.StartedAt,
		DryRun:      summary.DryRun,
	}

	for _, acct := range summary.Accounts {
		section := AccountSection{
			Profile: acct.Profile,
			Status:  acct.Status,
			Fetched: acct.Fetched,
			New:     acct.New,
			Err:     acct.Err,
		}
		if section.Profile.Username == "" {
			section.Profile.Username = acct.Account.Username
		}

		// flagged first, then newest first
		items := make([]models.ProcessedResult, len(acct.Results))
		copy(items, acct.Results)
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Flagged != items[j].Flagged {
				return items[i].Flagged
			}
			return items[i].Item.Timestamp.After(items[j].Item.Timestamp)
		})
		section.Items = items

		data.Accounts = append(data.Accounts, section)
		data.TotalNew += acct.New
		data.TotalFlagged += acct.Flagged
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrorTypePersistence, err, "failed to create report directory")
	}

	path := filepath.Join(dir, "report_"+summary.StartedAt.Format("2006-01-02_150405")+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypePersistence, err, "failed to create report file")
	}
	defer f.Close()

	if err := r.tmpl.Execute(f, data); err != nil {
		return "", errors.Wrap(errors.ErrorTypeUnknown, err, "failed to render report")
	}

	return path, nil
}
