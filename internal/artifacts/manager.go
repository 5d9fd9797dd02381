// Package artifacts caches unpacked run report archives on local disk.
package artifacts

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/appthwack/thwack/internal/appthwack"
)

// maxEntrySize bounds a single unpacked file.
const maxEntrySize = 512 << 20

var ErrEntryTooLarge = errors.New("report entry exceeds size limit")

type Manager struct {
	cacheDir string
	cacheTTL time.Duration
}

func NewManager(cacheDir string, cacheTTL time.Duration) *Manager {
	return &Manager{
		cacheDir: cacheDir,
		cacheTTL: cacheTTL,
	}
}

// Key names the cache entry of a run.
func Key(projectID, runID int) string {
	return fmt.Sprintf("project-%d-run-%d", projectID, runID)
}

// GetCachedReport returns the directory of an unexpired entry, or "" when
// there is none. Expired entries are removed.
func (m *Manager) GetCachedReport(key string) (string, error) {
	path := filepath.Join(m.cacheDir, key)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	if m.cacheTTL > 0 && time.Since(info.ModTime()) > m.cacheTTL {
		os.RemoveAll(path)
		return "", nil
	}

	return path, nil
}

// Fetch returns the unpacked report of a completed result, downloading it
// when it is not cached.
func (m *Manager) Fetch(ctx context.Context, run *appthwack.Run, res *appthwack.Result) (string, error) {
	key := Key(run.ProjectID, run.ID)
	if dir, err := m.GetCachedReport(key); err != nil || dir != "" {
		return dir, err
	}

	var buf bytes.Buffer
	if err := run.WriteResults(ctx, res, &buf); err != nil {
		return "", err
	}
	return m.SaveReport(key, buf.Bytes())
}

// SaveReport unpacks a zip archive into the entry for key, replacing any
// previous contents.
func (m *Manager) SaveReport(key string, data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read zip: %w", err)
	}

	targetDir := filepath.Join(m.cacheDir, key)
	if err := os.RemoveAll(targetDir); err != nil {
		return "", fmt.Errorf("failed to clear cache dir: %w", err)
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	for _, f := range r.File {
		if err := extract(targetDir, f); err != nil {
			os.RemoveAll(targetDir)
			return "", err
		}
	}

	return targetDir, nil
}

func extract(targetDir string, f *zip.File) error {
	fpath := filepath.Join(targetDir, f.Name)

	// Zip Slip
	if !strings.HasPrefix(fpath, filepath.Clean(targetDir)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal file path: %s", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(fpath, 0755)
	}

	if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
		return err
	}

	outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer outFile.Close()

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	n, err := io.Copy(outFile, io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return err
	}
	if n > maxEntrySize {
		return fmt.Errorf("%s: %w", f.Name, ErrEntryTooLarge)
	}
	return nil
}

// Files lists the files of an unpacked entry relative to dir.
func Files(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

// Prune removes expired entries and reports how many it removed.
func (m *Manager) Prune() (int, error) {
	entries, err := os.ReadDir(m.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir, err := m.GetCachedReport(e.Name())
		if err != nil {
			return removed, err
		}
		if dir == "" {
			removed++
		}
	}
	return removed, nil
}
