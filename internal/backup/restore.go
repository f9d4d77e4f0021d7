package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"craftbot/pkg/logx"
)

// Control is the slice of process control the restore flow needs.
type Control interface {
	Stop(ctx context.Context) error
	Start(ctx context.Context) error
}

// Restore replaces the world directory from an archive: stop the unit, take a
// restore-point snapshot, swap the world in, start the unit. Returns the
// restore-point path.
func (s *Service) Restore(ctx context.Context, archivePath string, ctrl Control) (string, error) {
	world, err := s.worldDir()
	if err != nil {
		return "", fmt.Errorf("resolve world dir: %w", err)
	}

	if err := ctrl.Stop(ctx); err != nil {
		return "", fmt.Errorf("stop unit: %w", err)
	}

	restorePoint, err := s.CreateSnapshot(ctx, "restore_point", false)
	if err != nil {
		return "", fmt.Errorf("restore point: %w", err)
	}

	if err := os.RemoveAll(world); err != nil {
		return restorePoint, fmt.Errorf("remove world: %w", err)
	}
	if err := untarInto(archivePath, filepath.Dir(world)); err != nil {
		return restorePoint, fmt.Errorf("extract %s: %w", archivePath, err)
	}

	if err := ctrl.Start(ctx); err != nil {
		return restorePoint, fmt.Errorf("start unit: %w", err)
	}
	s.log.Info("backup restored", logx.String("archive", archivePath), logx.String("restore_point", restorePoint))
	return restorePoint, nil
}

func untarInto(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		// Reject entries that would escape destDir.
		name := filepath.Clean(hdr.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("unsafe archive entry %q", hdr.Name)
		}
		target := filepath.Join(destDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			_, err = io.Copy(out, tr)
			cerr := out.Close()
			if err != nil {
				return err
			}
			if cerr != nil {
				return cerr
			}
		default:
			// symlinks and specials are not expected in world saves; skip
		}
	}
}
