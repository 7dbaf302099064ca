// Package drive uploads processed media and reports to Google Drive using a
// service account. Layout per account:
//
//	<username>/<YYYY-MM-DD>/POSTS/
//	<username>/<YYYY-MM-DD>/STORIES/
//	<username>/<YYYY-MM-DD>/report.html
//
// Folder IDs are cached per (parent, name) so repeated uploads within a run
// cost one lookup each at most.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"igmonitor/pkg/config"
	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Uploader wraps the Drive v3 service
type Uploader struct {
	service      *gdrive.Service
	rootFolderID string
	folderCache  map[string]string
	logger       logger.Logger
}

// NewUploader creates a Drive uploader authenticated with the configured
// service account. RootFolderID is required: service accounts have no
// usable My Drive of their own.
func NewUploader(ctx context.Context, cfg config.DriveConfig, log logger.Logger) (*Uploader, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.RootFolderID == "" {
		return nil, errors.New(errors.ErrorTypeUpload, "drive root folder ID is required")
	}

	service, err := gdrive.NewService(ctx,
		option.WithCredentialsFile(cfg.ServiceAccountPath),
		option.WithScopes(gdrive.DriveScope),
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUpload, err, "failed to create drive service")
	}

	return &Uploader{
		service:      service,
		rootFolderID: cfg.RootFolderID,
		folderCache:  map[string]string{},
		logger:       log,
	}, nil
}

// UploadMedia uploads an item's media file into its content folder and
// returns the Drive file ID
func (u *Uploader) UploadMedia(ctx context.Context, item models.ContentItem) (string, error) {
	folderID, err := u.contentFolder(ctx, item.Username, item.Kind, item.Timestamp)
	if err != nil {
		return "", err
	}

	f, err := os.Open(item.MediaPath)
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeUpload, err, "failed to open media file")
	}
	defer f.Close()

	name := filepath.Base(item.MediaPath)
	meta := &gdrive.File{
		Name:     name,
		MimeType: mimeTypeFor(name),
		Parents:  []string{folderID},
	}

	created, err := u.service.Files.Create(meta).
		Media(f).
		Fields("id, name, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeUpload, err, "media upload failed")
	}

	u.logger.DebugWithFields("uploaded media", map[string]interface{}{
		"username": item.Username,
		"name":     name,
		"file_id":  created.Id,
	})

	return created.Id, nil
}

// UploadSidecar writes an analysis JSON document next to the item's media
func (u *Uploader) UploadSidecar(ctx context.Context, item models.ContentItem, data []byte) (string, error) {
	folderID, err := u.contentFolder(ctx, item.Username, item.Kind, item.Timestamp)
	if err != nil {
		return "", err
	}

	meta := &gdrive.File{
		Name:     fmt.Sprintf("%s_analysis.json", item.ID),
		MimeType: "application/json",
		Parents:  []string{folderID},
	}

	created, err := u.service.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeUpload, err, "sidecar upload failed")
	}

	return created.Id, nil
}

// UploadReport uploads a report file into the account's date folder
func (u *Uploader) UploadReport(ctx context.Context, localPath, username string, date time.Time) (string, error) {
	folderID, err := u.dateFolder(ctx, username, date)
	if err != nil {
		return "", err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeUpload, err, "failed to open report file")
	}
	defer f.Close()

	name := filepath.Base(localPath)
	meta := &gdrive.File{
		Name:     name,
		MimeType: mimeTypeFor(name),
		Parents:  []string{folderID},
	}

	created, err := u.service.Files.Create(meta).
		Media(f).
		Fields("id, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeUpload, err, "report upload failed")
	}

	u.logger.InfoWithFields("uploaded report", map[string]interface{}{
		"username": username,
		"name":     name,
		"file_id":  created.Id,
	})

	return created.Id, nil
}

// contentFolder resolves <username>/<date>/<POSTS|STORIES>
func (u *Uploader) contentFolder(ctx context.Context, username string, kind models.ContentKind, date time.Time) (string, error) {
	dateID, err := u.dateFolder(ctx, username, date)
	if err != nil {
		return "", err
	}

	typeName := "POSTS"
	if kind == models.KindStory {
		typeName = "STORIES"
	}

	return u.ensureFolder(ctx, typeName, dateID)
}

// dateFolder resolves <username>/<date>
func (u *Uploader) dateFolder(ctx context.Context, username string, date time.Time) (string, error) {
	userID, err := u.ensureFolder(ctx, username, u.rootFolderID)
	if err != nil {
		return "", err
	}
	return u.ensureFolder(ctx, date.Format("2006-01-02"), userID)
}

// ensureFolder finds or creates a folder under parentID and returns its ID
func (u *Uploader) ensureFolder(ctx context.Context, name, parentID string) (string, error) {
	cacheKey := parentID + ":" + name
	if id, ok := u.folderCache[cacheKey]; ok {
		return id, nil
	}

	query := fmt.Sprintf("name='%s' and mimeType='%s' and '%s' in parents and trashed=false",
		escapeQuery(name), folderMimeType, parentID)

	list, err := u.service.Files.List().
		Q(query).
		Fields("files(id, name)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeUpload, err, "folder lookup failed")
	}

	if len(list.Files) > 0 {
		u.folderCache[cacheKey] = list.Files[0].Id
		return list.Files[0].Id, nil
	}

	created, err := u.service.Files.Create(&gdrive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeUpload, err, "folder create failed")
	}

	u.logger.DebugWithFields("created drive folder", map[string]interface{}{
		"name":   name,
		"parent": parentID,
		"id":     created.Id,
	})

	u.folderCache[cacheKey] = created.Id
	return created.Id, nil
}

// escapeQuery escapes single quotes for the Drive query language
func escapeQuery(s string) string {
	return strings.ReplaceAll(s, `'`, `\'`)
}

func mimeTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".mp4":
		return "video/mp4"
	case ".html":
		return "text/html"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
