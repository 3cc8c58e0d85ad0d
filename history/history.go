package history

// This file contains the run history: every invocation is recorded below the
// results root and can be loaded back for listing and viewing.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mborgerson/xemu-test/compare"
	"github.com/mborgerson/xemu-test/harness"
	"github.com/mborgerson/xemu-test/model"
)

const (
	// DirName is the directory below the results root holding the history.
	DirName = "history"
	// RecordName is the file name of a recorded run.
	RecordName = "run.json"
)

// ErrNotFound is returned by Find when no entry matches.
var ErrNotFound = errors.New("no history entry found")

type Entry struct {
	Run      model.Run
	FullPath string
}

// Root returns the history directory of a results root.
func Root(resultsRoot string) string {
	return filepath.Join(resultsRoot, DirName)
}

// Record writes run to <results>/history/<timestamp>-<id>/run.json and
// returns the directory it was written to.
func Record(logger zerolog.Logger, resultsRoot string, run *model.Run) (string, error) {
	runDir := filepath.Join(Root(resultsRoot), runName(run))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run: %w", err)
	}

	if err := os.WriteFile(filepath.Join(runDir, RecordName), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write run record: %w", err)
	}

	logger.Debug().Str("dir", runDir).Str("id", run.ID).Msg("Recorded run")
	return runDir, nil
}

func runName(run *model.Run) string {
	return fmt.Sprintf("%s-%s", run.Timestamp.Format("20060102-150405"), ShortID(run.ID))
}

// ShortID returns the first 8 characters of a run ID.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// LoadEntries loads all history entries below the results root, newest first.
// A results root without history yields no entries.
func LoadEntries(logger zerolog.Logger, resultsRoot string) ([]Entry, error) {
	root := Root(resultsRoot)
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var entries []Entry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			recordPath := filepath.Join(path, RecordName)
			if _, err := os.Stat(recordPath); err == nil {
				run, err := parseRunJSON(recordPath)
				if err != nil {
					logger.Warn().Err(err).Str("path", recordPath).Msg("Failed to parse run.json")
					return nil
				}

				entries = append(entries, Entry{
					Run:      run,
					FullPath: path,
				})
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk history directory: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Run.Timestamp.After(entries[j].Run.Timestamp)
	})

	return entries, nil
}

func parseRunJSON(path string) (model.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Run{}, err
	}

	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, err
	}

	return run, nil
}

// Find selects an entry from entries sorted newest first. ref is either an
// index counted back from the newest run (0 for the last, -1 for the one
// before) or a prefix of a run ID.
func Find(entries []Entry, ref string) (*Entry, error) {
	if ref == "" {
		ref = "0"
	}

	if parsed, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if parsed > 0 {
			return nil, fmt.Errorf("invalid index: %s (use 0 for last, -1 for second-to-last, etc.)", ref)
		}
		index := int(-parsed)
		if index >= len(entries) {
			return nil, fmt.Errorf("index %s out of range (only %d history entries)", ref, len(entries))
		}
		return &entries[index], nil
	}

	prefix := strings.ToLower(ref)
	for i := range entries {
		if strings.HasPrefix(strings.ToLower(entries[i].Run.ID), prefix) {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w matching ID: %s", ErrNotFound, ref)
}

// Artifacts lists what a run left below the results root: the harness log
// and, for every test, its results tree with the emulator logs, video
// captures and diff images found in it. Paths are relative to the results
// root and missing files are skipped.
func Artifacts(resultsRoot, harnessLog string, tests []model.TestResult) []model.Artifact {
	var artifacts []model.Artifact

	if info, err := os.Stat(filepath.Join(resultsRoot, harnessLog)); err == nil && !info.IsDir() {
		artifacts = append(artifacts, model.Artifact{
			Type: model.ArtifactTypeHarnessLog,
			Size: uint64(info.Size()),
			File: filepath.ToSlash(harnessLog),
		})
	}

	for i := range tests {
		name := tests[i].Name
		testRoot := filepath.Join(resultsRoot, name)
		if info, err := os.Stat(testRoot); err != nil || !info.IsDir() {
			continue
		}

		var found []model.Artifact
		var total uint64
		_ = filepath.WalkDir(testRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			rel, relErr := filepath.Rel(resultsRoot, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if d.Name() == compare.DiffDirName {
					size := treeSize(path)
					total += size
					found = append(found, model.Artifact{Type: model.ArtifactTypeDiffImages, Size: size, Test: name, File: rel})
					return fs.SkipDir
				}
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil {
				return nil
			}
			size := uint64(info.Size())
			total += size

			switch d.Name() {
			case harness.EmulatorLogName:
				found = append(found, model.Artifact{Type: model.ArtifactTypeEmulatorLog, Size: size, Test: name, File: rel})
			case harness.CaptureName:
				found = append(found, model.Artifact{Type: model.ArtifactTypeVideoCapture, Size: size, Test: name, File: rel})
			}
			return nil
		})

		artifacts = append(artifacts, model.Artifact{
			Type: model.ArtifactTypeResultsTree,
			Size: total,
			Test: name,
			File: filepath.ToSlash(name),
		})
		artifacts = append(artifacts, found...)
	}

	return artifacts
}

func treeSize(root string) uint64 {
	var size uint64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += uint64(info.Size())
		}
		return nil
	})
	return size
}
