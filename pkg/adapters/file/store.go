package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// Store implements ports.Store using the local filesystem.
// It stores documents as JSON files in a configured directory.
type Store[T any] struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".tradeflow/data".
func New[T any](basePath string) *Store[T] {
	if basePath == "" {
		basePath = filepath.Join(".tradeflow", "data")
	}
	return &Store[T]{BasePath: basePath}
}

func (s *Store[T]) path(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: id cannot be empty", domain.ErrValidation)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: id %q is not a valid file name", domain.ErrValidation, id)
	}
	return filepath.Join(s.BasePath, id+".json"), nil
}

// Save persists the document to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store[T]) Save(ctx context.Context, id string, doc *T) error {
	destPath, err := s.path(id)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure data directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	// Same directory as the destination: rename is only atomic within one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+id+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		// Windows refuses to rename over an existing file.
		if _, statErr := os.Stat(destPath); statErr == nil {
			if rmErr := os.Remove(destPath); rmErr != nil {
				return fmt.Errorf("failed to remove existing document for overwrite: %w", rmErr)
			}
			if err := os.Rename(tmpPath, destPath); err == nil {
				return nil
			}
		}
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

// Load retrieves the document from its JSON file.
func (s *Store[T]) Load(ctx context.Context, id string) (*T, error) {
	filePath, err := s.path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// Delete removes the document file.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	filePath, err := s.path(id)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document file: %w", err)
	}
	return nil
}

// List returns all stored ids.
func (s *Store[T]) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
