// Package pipeline turns one fetched content item into an analyzed, uploaded
// result. It is the Processor behind the run coordinator: any error it
// returns leaves the item uncommitted so the next run picks it up again.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"igmonitor/pkg/analyzer"
	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
)

// Analyzer is the Gemini surface the pipeline needs
type Analyzer interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Flag(ctx context.Context, item models.ContentItem, transcript string) (*analyzer.FlagResult, error)
}

// Uploader is the Drive surface the pipeline needs
type Uploader interface {
	UploadMedia(ctx context.Context, item models.ContentItem) (string, error)
	UploadSidecar(ctx context.Context, item models.ContentItem, data []byte) (string, error)
}

// SidecarStore drops a local copy of the analysis document next to the
// downloaded media
type SidecarStore interface {
	WriteJSON(username, filename string, data []byte) (string, error)
}

// Pipeline analyzes and uploads items. uploader may be nil when Drive is
// disabled; items are then analyzed only. store may be nil when no local
// copy is wanted.
type Pipeline struct {
	analyzer Analyzer
	uploader Uploader
	store    SidecarStore
	logger   logger.Logger
}

// New creates a processing pipeline
func New(a Analyzer, u Uploader, store SidecarStore, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{analyzer: a, uploader: u, store: store, logger: log}
}

// sidecar is the analysis document stored next to the media on Drive
type sidecar struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Username   string    `json:"username"`
	URL        string    `json:"url"`
	Caption    string    `json:"caption"`
	Timestamp  time.Time `json:"timestamp"`
	Likes      int       `json:"likes"`
	IsVideo    bool      `json:"is_video"`
	Transcript string    `json:"transcript,omitempty"`
	Flagged    bool      `json:"flagged"`
	FlagReason string    `json:"flag_reason,omitempty"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Process transcribes (videos), flags and uploads one item
func (p *Pipeline) Process(ctx context.Context, item models.ContentItem) (*models.ProcessedResult, error) {
	log := p.logger.WithFields(map[string]interface{}{
		"username": item.Username,
		"item":     item.ID,
		"kind":     string(item.Kind),
	})

	// Transcription failure degrades to a caption-only analysis rather
	// than failing the item: the media may simply have no usable audio
	// track
	transcript := ""
	if item.IsVideo && item.MediaPath != "" {
		t, err := p.analyzer.Transcribe(ctx, item.MediaPath)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).Warn("transcription failed, analyzing caption only")
		} else {
			transcript = t
		}
	}

	verdict, err := p.analyzer.Flag(ctx, item, transcript)
	if err != nil {
		return nil, err
	}

	result := &models.ProcessedResult{
		Item:       item,
		Transcript: transcript,
		Flagged:    verdict.Flagged,
		FlagReason: verdict.Reason,
	}

	if verdict.Flagged {
		log.WarnWithFields("item flagged", map[string]interface{}{
			"reason": verdict.Reason,
		})
	}

	doc, err := json.MarshalIndent(sidecar{
		ID:         item.ID,
		Kind:       string(item.Kind),
		Username:   item.Username,
		URL:        item.URL,
		Caption:    item.Caption,
		Timestamp:  item.Timestamp,
		Likes:      item.Likes,
		IsVideo:    item.IsVideo,
		Transcript: transcript,
		Flagged:    verdict.Flagged,
		FlagReason: verdict.Reason,
		AnalyzedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeAnalysis, err, "failed to marshal analysis sidecar")
	}

	// Local copy next to the downloaded media; best effort, the Drive
	// sidecar is the durable one
	if p.store != nil {
		if _, err := p.store.WriteJSON(item.Username, item.ID+"_analysis.json", doc); err != nil {
			log.WithError(err).Warn("failed to write local analysis file")
		}
	}

	if p.uploader != nil {
		driveID, err := p.uploader.UploadMedia(ctx, item)
		if err != nil {
			return nil, err
		}
		result.DriveFileID = driveID

		sidecarID, err := p.uploader.UploadSidecar(ctx, item, doc)
		if err != nil {
			return nil, err
		}
		result.DriveSidecarID = sidecarID
	}

	return result, nil
}
