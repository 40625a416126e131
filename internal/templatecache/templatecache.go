// Package templatecache implements the Executor's per-template working
// copy cache (spec.md §4.5): keyed by template id, refreshed only when the
// Web backend's updated_at advances past what's cached, unpacked once and
// reused across judgments until then.
//
// Adapted from original_source/judger/utils/template_manager.py's
// TemplateManager; the in-memory dict keyed by template_id becomes a
// mutex-guarded map, and the single-top-level-directory assertion becomes
// a typed error instead of a bare RuntimeError.
package templatecache

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/xjtu-graphics/judgerd/internal/domain"
	"github.com/xjtu-graphics/judgerd/internal/webclient"
)

// ErrMalformedTemplate is returned when an unpacked template archive does
// not contain exactly one top-level directory (spec.md §4.5 step 3).
type ErrMalformedTemplate struct {
	TemplateID int64
	EntryCount int
}

func (e *ErrMalformedTemplate) Error() string {
	return fmt.Sprintf("template %d: expected exactly one top-level directory, found %d entries", e.TemplateID, e.EntryCount)
}

// Cache is a process-local template cache rooted at tmpDir/templates.
type Cache struct {
	client  *webclient.Client
	dir     string
	mu      sync.Mutex
	entries map[int64]domain.TemplateCacheEntry
}

// New returns a Cache that downloads through client and stores unpacked
// templates under tmpDir/templates.
func New(client *webclient.Client, tmpDir string) (*Cache, error) {
	dir := filepath.Join(tmpDir, "templates")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create template cache dir %s: %w", dir, err)
	}
	return &Cache{client: client, dir: dir, entries: map[int64]domain.TemplateCacheEntry{}}, nil
}

// Get returns the cache entry for templateID, downloading and unpacking a
// fresh copy only when the Web backend's updated_at has advanced past what
// is cached (spec.md §4.5).
func (c *Cache) Get(ctx context.Context, templateID int64) (domain.TemplateCacheEntry, error) {
	meta, err := c.client.GetTemplateMeta(ctx, templateID)
	if err != nil {
		return domain.TemplateCacheEntry{}, fmt.Errorf("fetch template %d metadata: %w", templateID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.entries[templateID]; ok && cached.UpdatedAt >= meta.UpdatedAt {
		return cached, nil
	}

	entry, err := c.download(ctx, templateID, meta.UpdatedAt)
	if err != nil {
		return domain.TemplateCacheEntry{}, err
	}
	c.entries[templateID] = entry
	return entry, nil
}

// download streams, unpacks, and records one fresh template version,
// replacing any stale on-disk copy.
func (c *Cache) download(ctx context.Context, templateID int64, updatedAt string) (domain.TemplateCacheEntry, error) {
	templateDir := filepath.Join(c.dir, fmt.Sprintf("%d", templateID))
	if err := os.RemoveAll(templateDir); err != nil {
		return domain.TemplateCacheEntry{}, fmt.Errorf("purge stale template dir %s: %w", templateDir, err)
	}
	if err := os.MkdirAll(templateDir, 0o755); err != nil {
		return domain.TemplateCacheEntry{}, fmt.Errorf("create template dir %s: %w", templateDir, err)
	}

	// The archive lives beside templateDir, not in it, so the top-level entry
	// count below sees only the unpacked contents.
	zipPath := filepath.Join(c.dir, fmt.Sprintf("%d.zip", templateID))
	if err := c.client.DownloadTemplate(ctx, templateID, zipPath); err != nil {
		return domain.TemplateCacheEntry{}, fmt.Errorf("download template %d: %w", templateID, err)
	}
	defer os.Remove(zipPath)

	if err := unzip(zipPath, templateDir); err != nil {
		return domain.TemplateCacheEntry{}, fmt.Errorf("unpack template %d: %w", templateID, err)
	}

	entries, err := os.ReadDir(templateDir)
	if err != nil {
		return domain.TemplateCacheEntry{}, fmt.Errorf("list unpacked template %d: %w", templateID, err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return domain.TemplateCacheEntry{}, &ErrMalformedTemplate{TemplateID: templateID, EntryCount: len(entries)}
	}

	contentDir := filepath.Join(templateDir, entries[0].Name())
	return domain.TemplateCacheEntry{
		TemplateID: templateID,
		UpdatedAt:  updatedAt,
		Path:       contentDir,
		DirName:    entries[0].Name(),
	}, nil
}

// unzip extracts src (a zip archive) into destDir.
func unzip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !isWithinDir(destDir, target) {
			return fmt.Errorf("zip entry %q escapes destination directory", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

func isWithinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepathHasPrefix(rel, ".."+string(filepath.Separator))
}

func filepathHasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
