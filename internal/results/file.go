package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spigell/hh-interviewer/internal/interview"
)

// FileStore keeps one indented JSON document per session in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(sessionID string) string {
	return filepath.Join(f.dir, filepath.Base(sessionID)+".json")
}

func (f *FileStore) Persist(_ context.Context, outcome *interview.Outcome) error {
	if err := validate(outcome); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".interview_*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		tmp.Close()
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.path(outcome.SessionID))
}

func (f *FileStore) Get(_ context.Context, sessionID string) (*interview.Outcome, error) {
	file, err := os.Open(f.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var outcome interview.Outcome
	if err := json.NewDecoder(file).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("decode %s: %w", file.Name(), err)
	}
	return &outcome, nil
}

func (f *FileStore) List(ctx context.Context, limit int) ([]Summary, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}

	var out []Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		outcome, err := f.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, summarize(outcome))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FileStore) Close() error { return nil }
