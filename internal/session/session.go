// Package session enumerates the rollout files codex writes under
// {codexHome}/sessions. Each rollout is a JSONL file whose name ends in the
// session UUID.
package session

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Dir returns the rollout directory for the given codex home.
func Dir(codexHome string) string {
	return filepath.Join(codexHome, "sessions")
}

// ListSessionFiles returns every rollout file under the sessions directory,
// recursing into the date-sharded subdirectories. A missing directory is not
// an error; it just means no sessions have been recorded yet.
func ListSessionFiles(codexHome string) ([]string, error) {
	root := Dir(codexHome)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// LatestSessionID returns the session UUID of the most recently modified
// rollout file, or "" when none exist.
func LatestSessionID(codexHome string) (string, error) {
	files, err := ListSessionFiles(codexHome)
	if err != nil {
		return "", err
	}

	var latest string
	var latestMod int64
	for _, path := range files {
		id, ok := sessionIDFromFilename(path)
		if !ok {
			continue
		}
		info, statErr := os.Stat(path)
		if statErr != nil {
			log.Debugf("skipping unreadable rollout %s: %v", path, statErr)
			continue
		}
		if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest = id
			latestMod = mod
		}
	}
	return latest, nil
}

// sessionIDFromFilename extracts the trailing UUID from a rollout filename
// such as rollout-2025-01-02T15-04-05-<uuid>.jsonl.
func sessionIDFromFilename(path string) (string, bool) {
	name := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	if len(name) < 36 {
		return "", false
	}
	candidate := name[len(name)-36:]
	if _, err := uuid.Parse(candidate); err != nil {
		return "", false
	}
	return candidate, true
}

// ReadSessionFile returns the raw JSONL contents of a rollout file.
func ReadSessionFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// ReadHistory returns the contents of the cross-session message history
// file, or "" when codex has not written one.
func ReadHistory(codexHome string) (string, error) {
	data, err := os.ReadFile(filepath.Join(codexHome, "history.jsonl"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
