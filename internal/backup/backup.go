// Package backup owns the snapshot archive directory: creation of tar.gz
// world snapshots and the tiered retention policy that prunes them.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"craftbot/pkg/logx"
)

// archiveTimeFormat is the timestamp embedded in archive names:
// <prefix>_<YYYY-MM-DDTHH-MM>.tar.gz, local wall-clock at creation.
const archiveTimeFormat = "2006-01-02T15-04"

// boundaryLead is how long before an interval boundary a waiting snapshot
// starts, so the archive timestamp lands on the boundary minute.
const boundaryLead = time.Minute

type Config struct {
	// Root is the directory holding the archives.
	Root string
	// Interval between automatic snapshots; also the boundary the optional
	// pre-snapshot wait aligns to.
	Interval time.Duration
	// FrequentAge: archives older than this enter per-day dedup (tier 2).
	FrequentAge time.Duration
	// SparseAge: archives older than this are deleted outright (tier 1).
	SparseAge time.Duration
}

// Service creates and prunes world snapshots. It is the only component that
// deletes from the archive directory.
type Service struct {
	cfg      Config
	worldDir func() (string, error)
	log      logx.Logger
	now      func() time.Time
}

func New(cfg Config, worldDir func() (string, error), log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, worldDir: worldDir, log: log, now: time.Now}
}

// Entry is one archive as seen on disk. The creation time is re-derived from
// file mtime on every run; nothing is stored separately.
type Entry struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Prefix extracts the caller-supplied prefix from an archive name.
func (e Entry) Prefix() string {
	name := e.Name
	if i := strings.LastIndex(name, "_"); i > 0 {
		if _, err := time.Parse(archiveTimeFormat, strings.TrimSuffix(name[i+1:], ".tar.gz")); err == nil {
			return name[:i]
		}
	}
	return strings.TrimSuffix(name, ".tar.gz")
}

// CreateSnapshot archives the world directory under Root as
// <prefix>_<timestamp>.tar.gz and returns the archive path.
//
// Returns "" (not an error) when the world directory does not exist: there is
// nothing to back up. With waitForBoundary set, creation is delayed until
// boundaryLead before the next interval boundary so automatic and manual
// snapshots land on predictable timestamps.
func (s *Service) CreateSnapshot(ctx context.Context, prefix string, waitForBoundary bool) (string, error) {
	world, err := s.worldDir()
	if err != nil {
		return "", fmt.Errorf("resolve world dir: %w", err)
	}
	if _, err := os.Stat(world); os.IsNotExist(err) {
		s.log.Info("world directory missing, nothing to back up", logx.String("world", world))
		return "", nil
	}

	if waitForBoundary {
		if d := BoundaryDelay(s.now(), s.cfg.Interval, boundaryLead); d > 0 {
			s.log.Debug("waiting for snapshot boundary", logx.Duration("delay", d))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(d):
			}
		}
	}

	if err := os.MkdirAll(s.cfg.Root, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s.tar.gz", prefix, s.now().Format(archiveTimeFormat))
	dst := filepath.Join(s.cfg.Root, name)
	started := s.now()
	if err := tarDirectory(world, dst); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("archive %s: %w", world, err)
	}
	s.log.Info("snapshot created",
		logx.String("archive", dst),
		logx.Duration("took", s.now().Sub(started)),
	)
	return dst, nil
}

// BoundaryDelay computes how long to wait so that now+delay is lead before
// the next interval boundary. Returns 0 when already within lead of it.
func BoundaryDelay(now time.Time, interval, lead time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	untilNext := interval - now.Sub(now.Truncate(interval))
	d := untilNext - lead
	if d < 0 {
		return 0
	}
	return d
}

// List returns archives with mtime at or before the cutoff, newest first.
func (s *Service) List(before time.Time) ([]Entry, error) {
	entries, err := s.list()
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if !e.ModTime.After(before) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

// FormatEntries renders archive rows for display:
// "2025-01-19 04:50 - 130 MiB - backup".
func FormatEntries(entries []Entry) []string {
	rows := make([]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, fmt.Sprintf("%s - %s - %s",
			e.ModTime.Format("2006-01-02 15:04"),
			humanize.IBytes(uint64(e.Size)),
			e.Prefix(),
		))
	}
	return rows
}

// list re-derives the archive view from filesystem metadata. A missing
// backup directory is "nothing to do", not an error.
func (s *Service) list() ([]Entry, error) {
	dirents, err := os.ReadDir(s.cfg.Root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".tar.gz") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Path:    filepath.Join(s.cfg.Root, de.Name()),
			Name:    de.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

func tarDirectory(srcDir, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)

	base := filepath.Base(srcDir)
	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		arcname := base
		if rel != "." {
			arcname = filepath.Join(base, rel)
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(arcname)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			src, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, src)
			src.Close()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = tw.Close()
		_ = zw.Close()
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}
