package logging

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"forefront/arena/internal/config"
)

// rotatingFile appends to one log file and rolls it over once it grows past maxSize.
type rotatingFile struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int
	maxAge     time.Duration
	compress   bool
	file       *os.File
	size       int64
	now        func() time.Time
}

func openRotatingFile(cfg config.LoggingConfig) (*rotatingFile, error) {
	switch {
	case cfg.MaxSizeMB <= 0:
		return nil, errors.New("log max size must be positive")
	case cfg.MaxBackups < 0:
		return nil, errors.New("log max backups must be non-negative")
	case cfg.MaxAgeDays < 0:
		return nil, errors.New("log max age must be non-negative")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &rotatingFile{
		path:       cfg.Path,
		maxSize:    int64(cfg.MaxSizeMB) << 20,
		maxBackups: cfg.MaxBackups,
		maxAge:     time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		compress:   cfg.Compress,
		file:       file,
		size:       info.Size(),
		now:        time.Now,
	}, nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rollLocked(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

func (r *rotatingFile) rollLocked() error {
	if r.file == nil {
		return errors.New("log file not initialized")
	}
	if err := r.file.Close(); err != nil {
		return err
	}
	//1.- Move the active file aside under a timestamped name.
	rolled := fmt.Sprintf("%s.%s", r.path, r.now().UTC().Format("20060102T150405.000"))
	if err := os.Rename(r.path, rolled); err != nil {
		return err
	}
	//2.- Compress the backup when requested; keep the plain copy if gzip fails.
	if r.compress {
		if err := gzipFile(rolled, rolled+".gz"); err == nil {
			_ = os.Remove(rolled)
		}
	}
	//3.- Enforce the retention limits before reopening.
	r.pruneLocked()
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.file = file
	r.size = 0
	return nil
}

func (r *rotatingFile) pruneLocked() {
	dir := filepath.Dir(r.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type backup struct {
		name string
		mod  time.Time
	}
	prefix := filepath.Base(r.path) + "."
	backups := make([]backup, 0, len(entries))
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{name: filepath.Join(dir, entry.Name()), mod: info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].mod.After(backups[j].mod) })
	cutoff := time.Time{}
	if r.maxAge > 0 {
		cutoff = r.now().Add(-r.maxAge)
	}
	for i, b := range backups {
		if (r.maxBackups > 0 && i >= r.maxBackups) || (!cutoff.IsZero() && b.mod.Before(cutoff)) {
			_ = os.Remove(b.name)
		}
	}
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}
