package models

import "time"

// ContentKind distinguishes feed posts from stories
type ContentKind string

const (
	KindPost  ContentKind = "post"
	KindStory ContentKind = "story"
)

// Account is a monitored Instagram profile, loaded from the accounts file.
// Immutable for the duration of a run.
type Account struct {
	Username       string `json:"username"`
	IncludeStories bool   `json:"include_stories"`
}

// Profile holds public profile metadata
type Profile struct {
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Bio       string `json:"bio"`
	Followers int    `json:"followers"`
	Following int    `json:"following"`
	PostCount int    `json:"post_count"`
}

// ContentItem is a single post or story. ID is stable and unique per
// (account, kind); for posts it is the shortcode, for stories the media ID.
type ContentItem struct {
	ID        string      `json:"id"`
	Kind      ContentKind `json:"kind"`
	Username  string      `json:"username"`
	URL       string      `json:"url"`
	Caption   string      `json:"caption"`
	Timestamp time.Time   `json:"timestamp"`
	Likes     int         `json:"likes"`
	IsVideo   bool        `json:"is_video"`
	MediaURL  string      `json:"media_url,omitempty"`
	MediaPath string      `json:"media_path,omitempty"`
}

// FetchResult is everything the fetcher produced for one account, ordered
// newest first as Instagram returns it
type FetchResult struct {
	Profile Profile
	Items   []ContentItem
}

// ProcessedResult is the outcome of analyzing and uploading one item
type ProcessedResult struct {
	Item           ContentItem `json:"item"`
	Transcript     string      `json:"transcript,omitempty"`
	Flagged        bool        `json:"flagged"`
	FlagReason     string      `json:"flag_reason,omitempty"`
	DriveFileID    string      `json:"drive_file_id,omitempty"`
	DriveSidecarID string      `json:"drive_sidecar_id,omitempty"`
}

// AccountStatus is the terminal state of one account in a run
type AccountStatus string

const (
	StatusDone   AccountStatus = "done"
	StatusFailed AccountStatus = "failed"
)

// AccountResult summarizes one account's pass through the pipeline
type AccountResult struct {
	Account   Account
	Profile   Profile
	Status    AccountStatus
	Fetched   int
	New       int
	Processed int
	Flagged   int
	Results   []ProcessedResult
	ItemErrs  []error
	Err       error
}

// RunSummary aggregates a full monitoring run
type RunSummary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Accounts   []AccountResult
}

// TotalFlagged counts flagged items across all accounts
func (s *RunSummary) TotalFlagged() int {
	n := 0
	for _, a := range s.Accounts {
		n += a.Flagged
	}
	return n
}

// TotalProcessed counts committed items across all accounts
func (s *RunSummary) TotalProcessed() int {
	n := 0
	for _, a := range s.Accounts {
		n += a.Processed
	}
	return n
}
