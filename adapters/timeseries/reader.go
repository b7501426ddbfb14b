// Package timeseries reads ABIDE ROI time series from whitespace-delimited
// .1D text files, one row per timepoint and one column per ROI.
package timeseries

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"abidenet/domain/core"
	"abidenet/ports"

	"gonum.org/v1/gonum/mat"
)

// DefaultPattern is the CC400 derivative naming used by the preprocessed release
const DefaultPattern = "%s_rois_cc400.1D"

// Reader resolves a subject ID to <dir>/<pattern % id>
type Reader struct {
	dir     string
	pattern string
}

// NewReader creates a file reader; an empty pattern uses DefaultPattern
func NewReader(dir, pattern string) *Reader {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Reader{dir: dir, pattern: pattern}
}

// Path returns the file a subject is read from
func (r *Reader) Path(id core.SubjectID) string {
	return filepath.Join(r.dir, fmt.Sprintf(r.pattern, id))
}

// Read loads one subject. A file that does not exist wraps
// ports.ErrSubjectMissing; anything that cannot be parsed into a
// rectangular numeric matrix wraps ports.ErrSubjectUnreadable.
func (r *Reader) Read(ctx context.Context, id core.SubjectID) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := r.Path(id)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ports.ErrSubjectMissing, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrSubjectUnreadable, path, err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrSubjectUnreadable, path, err)
	}
	return m, nil
}

// Parse reads a .1D table. Text after '#' is a comment; blank lines are
// skipped. NaN and Inf cells are kept for the correlation engine to impute.
func Parse(r io.Reader) (*mat.Dense, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var data []float64
	cols, rows, line := 0, 0, 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if cols == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, fmt.Errorf("line %d has %d columns, want %d", line, len(fields), cols)
		}
		for _, s := range fields {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %q is not numeric", line, s)
			}
			data = append(data, v)
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("no data rows")
	}
	return mat.NewDense(rows, cols, data), nil
}
