package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrInvalidFilename marks a result filename that fails validation, as
// opposed to one that is simply missing.
var ErrInvalidFilename = errors.New("invalid result filename")

// ResultStore persists session results as flat JSON files under a single
// directory. One file per finished session, plus a live-state snapshot that
// is overwritten while a session is running.
type ResultStore struct {
	dir string
}

// liveStateFile is the rolling snapshot of the in-progress session, rewritten
// after every round.
const liveStateFile = "current_game.json"

// NewResultStore ensures the results directory exists.
func NewResultStore(dir string) (*ResultStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	return &ResultStore{dir: dir}, nil
}

// Save writes a sealed session result to its own timestamped file and
// returns the filename.
func (rs *ResultStore) Save(result *SessionResult) (string, error) {
	filename := fmt.Sprintf("session_%s_%s.json", result.SessionID, time.Now().Format("20060102_150405"))

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(rs.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write session result: %w", err)
	}
	return filename, nil
}

// SaveLiveState overwrites the rolling snapshot of the running session.
func (rs *ResultStore) SaveLiveState(result *SessionResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal live state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(rs.dir, liveStateFile), data, 0o644); err != nil {
		return fmt.Errorf("write live state: %w", err)
	}
	return nil
}

// ResultFile describes one persisted session snapshot.
type ResultFile struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// List returns the persisted session files, newest first. The live-state
// snapshot is excluded.
func (rs *ResultStore) List() ([]ResultFile, error) {
	entries, err := os.ReadDir(rs.dir)
	if err != nil {
		return nil, fmt.Errorf("read results dir: %w", err)
	}

	var files []ResultFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || name == liveStateFile {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, ResultFile{Filename: name, Size: info.Size(), Modified: info.ModTime()})
	}

	sort.Slice(files, func(a, b int) bool {
		return files[a].Modified.After(files[b].Modified)
	})
	return files, nil
}

// Load reads one persisted session snapshot by filename. Filenames are
// validated so a caller can never reach outside the results directory.
func (rs *ResultStore) Load(filename string) (*SessionResult, error) {
	if err := validateResultFilename(filename); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(rs.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("read session result: %w", err)
	}

	var result SessionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse session result %s: %w", filename, err)
	}
	return &result, nil
}

func validateResultFilename(filename string) error {
	if !strings.HasSuffix(filename, ".json") {
		return fmt.Errorf("%w: %q must end in .json", ErrInvalidFilename, filename)
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("%w: %q contains path separators", ErrInvalidFilename, filename)
	}
	return nil
}
