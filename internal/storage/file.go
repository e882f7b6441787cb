package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"liquidityOracle/internal/model"
)

// FilePublisher keeps the latest snapshot in a local JSON file.
type FilePublisher struct {
	Path string
}

// Publish replaces the file atomically.
func (s *FilePublisher) Publish(ctx context.Context, snapshot *model.PriceSnapshot) error {
	if s == nil || s.Path == "" || snapshot == nil {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Latest reads the last published snapshot. ok is false when nothing was published yet.
func (s *FilePublisher) Latest(ctx context.Context) (*model.PriceSnapshot, bool, error) {
	if s == nil || s.Path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot model.PriceSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snapshot, true, nil
}
