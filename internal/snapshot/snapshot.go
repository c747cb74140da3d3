// Package snapshot implements the Snapshot Synchronizer: keeping a local
// cache of an AMBRE or DWINGS network artifact (a raw .accdb-equivalent
// database file or a .zip containing one) fresh, without ever disturbing a
// reader mid-read on the local side.
package snapshot

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// equalityTolerance bounds the LastWriteTimeUtc drift two files may have and
// still be considered the same artifact.
const equalityTolerance = 5 * time.Second

const (
	maxReplaceRetries  = 5
	replaceBaseBackoff = 200 * time.Millisecond
)

// dwDataFileName is the explicitly preferred member name inside a DWINGS zip
// when more than one .accdb-equivalent file is present.
const dwDataFileName = "DW_Data.accdb"

// Source describes the network artifact for one local target file.
type Source struct {
	// NetPath is either a raw database file or a .zip archive.
	NetPath string
	// LocalPath is the local cache target this source keeps fresh: the
	// extracted database file when NetPath is a .zip.
	LocalPath string
	// LocalZipCache is where the last-synced copy of a .zip NetPath is
	// kept, so the next Sync can compare the archive itself for the
	// up-to-date check instead of comparing it against the extracted
	// database it produced (sizes/mtimes of those two never line up).
	// Unused when NetPath is not a .zip; if empty, every zip sync
	// unconditionally re-extracts.
	LocalZipCache string
}

// Result reports what Sync actually did.
type Result struct {
	Updated bool
	Reason  string
}

// Sync brings LocalPath up to date with NetPath, following the equality and
// atomic-replace rules: zip archives are extracted to a temp file first,
// raw files are exclusive-open-probed before copying, and the final
// replace retries through transient sharing violations.
func Sync(ctx context.Context, src Source) (Result, error) {
	info, err := os.Stat(src.NetPath)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot: stat network artifact: %w", err)
	}

	if strings.EqualFold(filepath.Ext(src.NetPath), ".zip") {
		return syncFromZip(ctx, src, info)
	}
	return syncFromFile(ctx, src, info)
}

func syncFromZip(ctx context.Context, src Source, zipInfo os.FileInfo) (Result, error) {
	localAbsent := false
	if _, err := os.Stat(src.LocalPath); err != nil {
		if !os.IsNotExist(err) {
			return Result{}, fmt.Errorf("snapshot: stat local target: %w", err)
		}
		localAbsent = true
	}

	// Compare the archive against its own cached copy, never against the
	// extracted database: a zip and the .accdb it contains never share a
	// size or mtime, so comparing those two directly would never be equal
	// and every sync would re-extract. An unset cache path means there is
	// nothing to compare against, so always refresh.
	equal := false
	if src.LocalZipCache != "" {
		var err error
		equal, err = filesEqual(src.NetPath, zipInfo, src.LocalZipCache)
		if err != nil {
			return Result{}, err
		}
	}
	if equal && !localAbsent {
		return Result{Reason: "up to date"}, nil
	}

	extracted, err := extractLargestOrNamed(src.NetPath, dwDataFileName)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot: extract zip: %w", err)
	}
	defer os.Remove(extracted)

	if err := replaceAtomically(ctx, extracted, src.LocalPath); err != nil {
		return Result{}, err
	}
	if err := os.Chtimes(src.LocalPath, zipInfo.ModTime(), zipInfo.ModTime()); err != nil {
		slog.Warn("snapshot: set local mtime after extract", "path", src.LocalPath, "err", err)
	}

	if src.LocalZipCache != "" {
		if err := refreshZipCache(ctx, src, zipInfo); err != nil {
			slog.Warn("snapshot: refresh zip cache", "path", src.LocalZipCache, "err", err)
		}
	}
	return Result{Updated: true, Reason: "zip refreshed"}, nil
}

// refreshZipCache stages a copy of the just-synced archive onto
// LocalZipCache so the next Sync call can detect "unchanged" without
// re-extracting. A failure here is non-fatal: the sync itself already
// succeeded, it only means the next call will re-extract unnecessarily.
func refreshZipCache(ctx context.Context, src Source, zipInfo os.FileInfo) error {
	staged, err := stageCopy(src.NetPath)
	if err != nil {
		return fmt.Errorf("stage zip for cache: %w", err)
	}
	defer os.Remove(staged)

	if err := replaceAtomically(ctx, staged, src.LocalZipCache); err != nil {
		return fmt.Errorf("replace zip cache: %w", err)
	}
	if err := os.Chtimes(src.LocalZipCache, zipInfo.ModTime(), zipInfo.ModTime()); err != nil {
		return fmt.Errorf("set zip cache mtime: %w", err)
	}
	return nil
}

func syncFromFile(ctx context.Context, src Source, netInfo os.FileInfo) (Result, error) {
	locked, err := exclusiveOpenProbe(src.NetPath)
	if err != nil {
		return Result{}, err
	}
	if locked {
		return Result{Reason: "network file locked, skipped"}, nil
	}

	equal, err := filesEqual(src.NetPath, netInfo, src.LocalPath)
	if err != nil {
		return Result{}, err
	}
	if equal {
		return Result{Reason: "up to date"}, nil
	}

	staged, err := stageCopy(src.NetPath)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot: stage network file: %w", err)
	}
	defer os.Remove(staged)

	if err := replaceAtomically(ctx, staged, src.LocalPath); err != nil {
		return Result{}, err
	}
	if err := os.Chtimes(src.LocalPath, netInfo.ModTime(), netInfo.ModTime()); err != nil {
		slog.Warn("snapshot: set local mtime after copy", "path", src.LocalPath, "err", err)
	}
	return Result{Updated: true, Reason: "file refreshed"}, nil
}

// filesEqual implements the spec's equality rule: same size and
// |mtime diff| <= equalityTolerance. A missing local file is never equal.
func filesEqual(netPath string, netInfo os.FileInfo, localPath string) (bool, error) {
	localInfo, err := os.Stat(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("snapshot: stat local file: %w", err)
	}
	if localInfo.Size() != netInfo.Size() {
		return false, nil
	}
	diff := localInfo.ModTime().Sub(netInfo.ModTime())
	if diff < 0 {
		diff = -diff
	}
	return diff <= equalityTolerance, nil
}

// exclusiveOpenProbe reports whether netPath appears to be held open for
// exclusive write access by another process, by attempting a read-write
// open and immediately closing it. Any open failure other than a missing
// file is treated as "locked". The open itself requests no exclusive
// access, so a holder is detected only when its sharing mode or the file's
// permissions refuse a read-write open; this is a best-effort probe, not a
// guarantee.
func exclusiveOpenProbe(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsPermission(err) {
			return true, nil
		}
		if os.IsNotExist(err) {
			return false, fmt.Errorf("snapshot: network file vanished: %w", err)
		}
		return true, nil
	}
	f.Close()
	return false, nil
}

// extractLargestOrNamed extracts the named member if present, else the
// largest .accdb-equivalent member, from a zip archive to a new temp file
// and returns its path.
func extractLargestOrNamed(zipPath, preferredName string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var chosen *zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Base(f.Name), preferredName) {
			chosen = f
			break
		}
	}
	if chosen == nil {
		candidates := make([]*zip.File, 0, len(r.File))
		for _, f := range r.File {
			if !f.FileInfo().IsDir() {
				candidates = append(candidates, f)
			}
		}
		if len(candidates) == 0 {
			return "", fmt.Errorf("zip %s has no files", zipPath)
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].FileInfo().Size() > candidates[j].FileInfo().Size()
		})
		chosen = candidates[0]
	}

	src, err := chosen.Open()
	if err != nil {
		return "", fmt.Errorf("open zip member %s: %w", chosen.Name, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "snapshot-extract-*.accdb")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("extract %s: %w", chosen.Name, err)
	}
	return tmp.Name(), nil
}

// stageCopy copies path into a new temp file and returns its name, so the
// caller can replace the local target from a disposable copy without ever
// touching (let alone moving) the shared network original.
func stageCopy(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "snapshot-stage-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("copy %s: %w", path, err)
	}
	return tmp.Name(), nil
}

// replaceAtomically moves srcPath onto dstPath, retrying through sharing
// violations with exponential backoff, falling back to delete+move if the
// atomic rename never succeeds.
func replaceAtomically(ctx context.Context, srcPath, dstPath string) error {
	var lastErr error
	for attempt := 0; attempt <= maxReplaceRetries; attempt++ {
		if attempt > 0 {
			backoff := replaceBaseBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := renameReplace(srcPath, dstPath); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	slog.Warn("snapshot: atomic replace exhausted retries, falling back to delete+move", "target", dstPath, "err", lastErr)
	if err := os.Remove(dstPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot: fallback remove %s: %w", dstPath, err)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		// os.Rename fails across filesystem boundaries (e.g. a temp dir on a
		// different mount); copy the bytes across instead as the last resort.
		if cerr := copyFileContents(srcPath, dstPath); cerr != nil {
			return fmt.Errorf("snapshot: fallback move %s -> %s: %w", srcPath, dstPath, err)
		}
		os.Remove(srcPath)
	}
	return nil
}

func copyFileContents(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.CreateTemp(filepath.Dir(dstPath), ".snapshot-copy-*")
	if err != nil {
		return err
	}
	tmpName := dst.Name()
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmpName)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dstPath)
}

// renameReplace performs the actual replace. os.Rename already behaves like
// File.Replace on POSIX (atomic, overwrites dst); on Windows the standard
// library's os.Rename likewise calls MoveFileEx with the replace-existing
// flag, so no platform split is required here.
func renameReplace(srcPath, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("ensure target dir: %w", err)
	}
	return os.Rename(srcPath, dstPath)
}
