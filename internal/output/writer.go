package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
)

// Filesystem hooks, replaced in tests to inject failures.
var (
	renameFile = os.Rename
	syncFile   = func(f *os.File) error { return f.Sync() }
)

const (
	outputFilePerm = 0o644
	outputDirPerm  = 0o755
)

// Recovery describes what OpenSiteWriter found and repaired.
type Recovery struct {
	// Created is set when the output file was new or empty.
	Created bool
	// Legacy is set when an existing file had no commit marker, or one that
	// no longer matched its content.
	Legacy bool
	// DiscardedBytes is the size of the uncommitted tail that was removed.
	DiscardedBytes int64
}

// SiteWriter appends rows to one site output. At most one SiteWriter per
// output file exists across all processes; the file lock enforces this.
type SiteWriter struct {
	mu        sync.Mutex
	siteID    string
	path      string
	file      *os.File
	lock      *flock.Flock
	columns   []string
	committed int64
	recovery  Recovery
	log       logger.Logger
	closed    bool
}

// OpenSiteWriter locks and opens the output for siteID in dir, repairing it
// to its last committed state.
func OpenSiteWriter(dir, siteID string) (*SiteWriter, error) {
	if err := os.MkdirAll(dir, outputDirPerm); err != nil {
		return nil, mergeError(err, siteID, "create_output_dir")
	}

	path := Path(dir, siteID)
	lock := flock.New(lockPath(path))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, mergeError(err, siteID, "lock_output")
	}
	if !locked {
		return nil, mergeError(fmt.Errorf("output %s is locked by another process", filepath.Base(path)), siteID, "lock_output")
	}

	w := &SiteWriter{
		siteID: siteID,
		path:   path,
		lock:   lock,
		log:    GetLogger().With(logger.String("site", siteID)),
	}

	if err := w.open(); err != nil {
		_ = w.release()
		return nil, err
	}
	return w, nil
}

// open performs recovery and header handling. The lock is held.
func (w *SiteWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE, outputFilePerm) //nolint:gosec // output path from configuration
	if err != nil {
		return mergeError(err, w.siteID, "open_output")
	}
	w.file = f

	info, err := f.Stat()
	if err != nil {
		return mergeError(err, w.siteID, "stat_output")
	}
	size := info.Size()

	marker, hasMarker, err := readMarker(w.path)
	if err != nil {
		return mergeError(err, w.siteID, "read_commit_marker")
	}

	var committed int64
	trusted := true
	if size > 0 {
		committed, trusted, err = committedLength(f, size, marker, hasMarker)
		if err != nil {
			return mergeError(err, w.siteID, "scan_output")
		}
	}
	if !trusted {
		w.recovery.Legacy = true
		if hasMarker {
			// Edited or appended to by another tool; the recorded offset may
			// now fall inside a committed row.
			w.log.Warn("commit marker does not match output, recovering at last complete line",
				logger.Int64("marker", marker.Length),
				logger.Int64("size", size),
				logger.Int64("recovered", committed))
		}
	}

	if committed > 0 {
		header, err := readHeader(io.NewSectionReader(f, 0, committed))
		if err != nil || !compatibleHeader(header) {
			cause := err
			if cause == nil {
				cause = fmt.Errorf("incompatible header in %s: %v", filepath.Base(w.path), header)
			}
			return mergeError(cause, w.siteID, "verify_header")
		}
		w.columns = header
	}

	if committed < size {
		w.recovery.DiscardedBytes = size - committed
		w.log.Warn("discarding uncommitted output from interrupted batch",
			logger.Int64("bytes", size-committed))
		if err := w.truncate(committed); err != nil {
			return err
		}
	}

	if committed == 0 {
		w.recovery.Created = true
		w.columns = Header
		return w.writeHeader()
	}
	w.committed = committed

	// Adopt the repaired state so later opens do not rescan.
	if !trusted || w.recovery.DiscardedBytes > 0 {
		if err := w.writeMarker(committed); err != nil {
			return err
		}
	}
	return nil
}

func (w *SiteWriter) writeHeader() error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(w.columns); err != nil {
		return mergeError(err, w.siteID, "encode_header")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return mergeError(err, w.siteID, "encode_header")
	}
	return w.commit(buf.Bytes(), "write_header")
}

// AppendBatch durably appends rows as one unit. Either all rows become
// part of the committed output or none do.
func (w *SiteWriter) AppendBatch(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return mergeError(fmt.Errorf("writer is closed"), w.siteID, "append_batch")
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	for _, r := range rows {
		if err := cw.Write(r.Record(w.columns)); err != nil {
			return mergeError(err, w.siteID, "encode_rows")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return mergeError(err, w.siteID, "encode_rows")
	}

	return w.commit(buf.Bytes(), "append_batch")
}

// commit writes data at the committed offset, syncs it and then advances
// the commit marker. On failure the file is rolled back.
func (w *SiteWriter) commit(data []byte, operation string) error {
	if _, err := w.file.WriteAt(data, w.committed); err != nil {
		return w.rollback(err, operation)
	}
	if err := syncFile(w.file); err != nil {
		return w.rollback(err, operation)
	}

	next := w.committed + int64(len(data))
	if err := w.writeMarker(next); err != nil {
		return w.rollback(err, operation)
	}
	w.committed = next
	return nil
}

func (w *SiteWriter) rollback(cause error, operation string) error {
	if terr := w.truncate(w.committed); terr != nil {
		w.log.Error("failed to roll back output after write error",
			logger.Error(terr),
			logger.Int64("committed", w.committed))
	}
	return mergeError(cause, w.siteID, operation)
}

func (w *SiteWriter) truncate(size int64) error {
	if err := w.file.Truncate(size); err != nil {
		return mergeError(err, w.siteID, "truncate_output")
	}
	if err := syncFile(w.file); err != nil {
		return mergeError(err, w.siteID, "truncate_output")
	}
	return nil
}

// writeMarker atomically replaces the commit marker with length and the
// fingerprint of the bytes before it.
func (w *SiteWriter) writeMarker(length int64) error {
	marker, err := newCommitMarker(w.file, length)
	if err != nil {
		return mergeError(err, w.siteID, "write_commit_marker")
	}

	final := markerPath(w.path)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, outputFilePerm) //nolint:gosec // derived from output path
	if err != nil {
		return mergeError(err, w.siteID, "write_commit_marker")
	}
	_, werr := f.WriteString(marker.encode())
	if werr == nil {
		werr = syncFile(f)
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return mergeError(werr, w.siteID, "write_commit_marker")
	}

	if err := renameFile(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return mergeError(err, w.siteID, "write_commit_marker")
	}
	syncDir(filepath.Dir(final))
	return nil
}

// syncDir flushes directory metadata so a completed rename survives a crash.
// Not every platform supports it; failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // output directory
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Path returns the output file path.
func (w *SiteWriter) Path() string {
	return w.path
}

// Committed returns the durable length of the output in bytes.
func (w *SiteWriter) Committed() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.committed
}

// Recovery reports what was repaired when the writer was opened.
func (w *SiteWriter) Recovery() Recovery {
	return w.recovery
}

// Close closes the file and releases the lock.
func (w *SiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.release()
}

func (w *SiteWriter) release() error {
	var errs []error
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			errs = append(errs, err)
		}
		w.file = nil
	}
	if err := w.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return mergeError(errors.Join(errs...), w.siteID, "close_output")
	}
	return nil
}

func mergeError(err error, siteID, operation string) error {
	if errors.IsCategory(err, errors.CategoryMergeIO) {
		return err
	}
	return errors.MergeIOError(err, siteID, operation)
}
