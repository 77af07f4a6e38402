package output

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileName returns the output file name for a site.
func FileName(siteID string) string {
	return "batdetect2_" + siteID + ".csv"
}

// Path returns the output file path for a site in dir.
func Path(dir, siteID string) string {
	return filepath.Join(dir, FileName(siteID))
}

// markerPath returns the commit marker that records how many bytes of
// outputPath are durable.
func markerPath(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".commit")
}

// lockPath returns the lock file guarding outputPath.
func lockPath(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".lock")
}

// tailWindow is how many bytes before the committed offset the marker
// fingerprints.
const tailWindow = 256

// commitMarker records the durable length of an output file and a CRC32 of
// the bytes just before that offset. Markers written before the checksum
// was added carry only the length.
type commitMarker struct {
	Length  int64
	Tail    uint32
	hasTail bool
}

func (m commitMarker) encode() string {
	return fmt.Sprintf("%d %08x\n", m.Length, m.Tail)
}

// newCommitMarker fingerprints the first length bytes of r.
func newCommitMarker(r io.ReaderAt, length int64) (commitMarker, error) {
	tail, err := readTail(r, length)
	if err != nil {
		return commitMarker{}, err
	}
	return commitMarker{Length: length, Tail: crc32.ChecksumIEEE(tail), hasTail: true}, nil
}

// matches reports whether m still describes r. The committed prefix must end
// on a line boundary and, when m carries one, match the tail checksum. A file
// that was rewritten or appended to by another tool fails this check.
func (m commitMarker) matches(r io.ReaderAt) (bool, error) {
	if m.Length == 0 {
		return true, nil
	}
	tail, err := readTail(r, m.Length)
	if err != nil {
		return false, err
	}
	if tail[len(tail)-1] != '\n' {
		return false, nil
	}
	if m.hasTail && crc32.ChecksumIEEE(tail) != m.Tail {
		return false, nil
	}
	return true, nil
}

// readTail returns up to tailWindow bytes ending at end.
func readTail(r io.ReaderAt, end int64) ([]byte, error) {
	start := max(end-tailWindow, 0)
	buf := make([]byte, end-start)
	n, err := r.ReadAt(buf, start)
	if n < len(buf) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// readMarker returns the commit marker recorded for outputPath.
// ok is false when there is no usable marker.
func readMarker(outputPath string) (m commitMarker, ok bool, err error) {
	data, err := os.ReadFile(markerPath(outputPath)) //nolint:gosec // derived from output path
	if err != nil {
		if os.IsNotExist(err) {
			return commitMarker{}, false, nil
		}
		return commitMarker{}, false, err
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 || len(fields) > 2 {
		return commitMarker{}, false, nil
	}
	n, perr := strconv.ParseInt(fields[0], 10, 64)
	if perr != nil || n < 0 {
		return commitMarker{}, false, nil
	}
	m = commitMarker{Length: n}
	if len(fields) == 2 {
		sum, perr := strconv.ParseUint(fields[1], 16, 32)
		if perr != nil {
			return commitMarker{}, false, nil
		}
		m.Tail = uint32(sum)
		m.hasTail = true
	}
	return m, true, nil
}

// committedLength returns how many bytes of f, which is size bytes long,
// belong to committed output. It falls back to the last complete line when
// the marker is missing or no longer describes the file; trusted is false
// in that case.
func committedLength(f io.ReaderAt, size int64, m commitMarker, hasMarker bool) (length int64, trusted bool, err error) {
	if hasMarker && m.Length <= size {
		ok, err := m.matches(f)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return m.Length, true, nil
		}
	}
	length, err = lastLineEnd(f, size)
	return length, false, err
}

// lastLineEnd returns the offset just past the last newline in the first
// limit bytes of r, or 0 when there is none.
func lastLineEnd(r io.ReaderAt, limit int64) (int64, error) {
	const chunk = 64 * 1024
	buf := make([]byte, chunk)
	for end := limit; end > 0; {
		start := max(end-chunk, 0)
		n, err := r.ReadAt(buf[:end-start], start)
		if err != nil && err != io.EOF {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// committedReadCloser limits reads to the committed prefix of a file.
type committedReadCloser struct {
	io.Reader
	file *os.File
}

func (c *committedReadCloser) Close() error {
	return c.file.Close()
}

// OpenCommitted opens outputPath for reading, limited to its committed
// prefix. Files without a matching commit marker are read up to their last
// complete line. A missing file returns an error satisfying os.IsNotExist.
func OpenCommitted(outputPath string) (io.ReadCloser, error) {
	f, err := os.Open(outputPath) //nolint:gosec // caller controls output directory
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	m, ok, err := readMarker(outputPath)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	limit, _, err := committedLength(f, info.Size(), m, ok)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &committedReadCloser{Reader: io.NewSectionReader(f, 0, limit), file: f}, nil
}

// readHeader parses the first CSV record of r.
func readHeader(r io.Reader) ([]string, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	return header, nil
}

// FileColumn returns the index of the file name column in header, accepting
// the legacy name, or -1.
func FileColumn(header []string) int {
	legacy := -1
	for i, c := range header {
		switch c {
		case ColumnFilename:
			return i
		case LegacyColumnFile:
			if legacy < 0 {
				legacy = i
			}
		}
	}
	return legacy
}

// compatibleHeader reports whether rows can be appended under header.
func compatibleHeader(header []string) bool {
	hasClass := false
	for _, c := range header {
		if c == ColumnClass {
			hasClass = true
		}
	}
	return hasClass && FileColumn(header) >= 0
}
