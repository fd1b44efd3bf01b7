package replay

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"forefront/arena/internal/logging"
)

// RetentionPolicy bounds how many replay bundles stay on disk.
type RetentionPolicy struct {
	MaxBundles int
	MaxAge     time.Duration
}

// StorageStats summarises the bundles left after a sweep.
type StorageStats struct {
	Bundles   int
	Removed   int
	Bytes     int64
	LastSweep time.Time
}

// Cleaner prunes replay bundles according to a retention policy. Only
// directories carrying a manifest are considered; anything else below the
// replay root is left alone.
type Cleaner struct {
	mu     sync.RWMutex
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	stats  StorageStats
}

// NewCleaner constructs a cleaner for the replay root.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now}
}

// Run sweeps once immediately and then every interval until ctx ends.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.Sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Stats returns the figures of the last sweep.
func (c *Cleaner) Stats() StorageStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type bundle struct {
	name    string
	path    string
	size    int64
	created time.Time
}

// Sweep applies the policy once.
func (c *Cleaner) Sweep() {
	if strings.TrimSpace(c.dir) == "" {
		return
	}
	bundles, err := c.collect()
	if err != nil {
		c.log.Warn("replay retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	now := c.now()
	stats := StorageStats{LastSweep: now}
	kept := 0
	for _, b := range bundles {
		reason := c.reason(b, now, kept)
		if reason != "" {
			err := os.RemoveAll(b.path)
			if err == nil {
				stats.Removed++
				c.log.Info("replay bundle pruned", logging.String("bundle", b.name), logging.String("reason", reason))
				continue
			}
			//1.- A bundle that could not be removed still occupies disk.
			c.log.Warn("replay bundle removal failed", logging.Error(err), logging.String("bundle", b.name))
		}
		kept++
		stats.Bundles++
		stats.Bytes += b.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

func (c *Cleaner) collect() ([]bundle, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	bundles := make([]bundle, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		manifest, err := ReadManifest(path)
		if err != nil {
			continue
		}
		//1.- The manifest timestamp orders bundles; the directory mtime is the fallback.
		created, err := time.Parse(time.RFC3339Nano, manifest.CreatedAt)
		if err != nil {
			info, statErr := entry.Info()
			if statErr != nil {
				continue
			}
			created = info.ModTime()
		}
		size, err := directorySize(path)
		if err != nil {
			c.log.Warn("replay bundle size failed", logging.Error(err), logging.String("bundle", entry.Name()))
		}
		bundles = append(bundles, bundle{name: entry.Name(), path: path, size: size, created: created})
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].created.After(bundles[j].created) })
	return bundles, nil
}

func (c *Cleaner) reason(b bundle, now time.Time, kept int) string {
	var reasons []string
	if c.policy.MaxAge > 0 && now.Sub(b.created) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxBundles > 0 && kept >= c.policy.MaxBundles {
		reasons = append(reasons, fmt.Sprintf(">=%d bundles", c.policy.MaxBundles))
	}
	return strings.Join(reasons, ", ")
}

func directorySize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
