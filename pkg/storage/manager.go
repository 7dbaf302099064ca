// Package storage manages the temporary download area where fetched media
// lives between scrape and upload. Media is deleted per account once the
// account's items are processed.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Manager handles per-account temp directories under a base directory
type Manager struct {
	baseDir string
}

// NewManager creates a storage manager rooted at baseDir
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &Manager{baseDir: baseDir}, nil
}

// AccountDir returns (and creates) the temp directory for one account
func (m *Manager) AccountDir(username string) (string, error) {
	dir := filepath.Join(m.baseDir, username)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create account directory: %w", err)
	}
	return dir, nil
}

// SaveMedia writes a media stream into the account's temp directory and
// returns the full path
func (m *Manager) SaveMedia(r io.Reader, username, filename string) (string, error) {
	dir, err := m.AccountDir(username)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, filename)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write media file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close media file: %w", err)
	}

	return path, nil
}

// WriteJSON writes a JSON sidecar into the account's temp directory
func (m *Manager) WriteJSON(username, filename string, data []byte) (string, error) {
	dir, err := m.AccountDir(username)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write json file: %w", err)
	}
	return path, nil
}

// Cleanup removes all downloaded media for an account
func (m *Manager) Cleanup(username string) error {
	dir := filepath.Join(m.baseDir, username)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clean up %s: %w", username, err)
	}
	return nil
}
