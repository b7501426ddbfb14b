// Package artifacts persists stage outputs under one directory so each stage
// can be rerun from the previous stage's files.
package artifacts

import (
	"bufio"
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"abidenet/domain/core"
	apperrors "abidenet/internal/errors"
)

// Stage directories
const (
	DirConnectivity = "connectivity"
	DirRegressed    = "connectivity/regressed"
	DirStatistics   = "statistics"
	DirEdges        = "edges"
	DirReport       = "report"
)

// ManifestFile lives at the store root
const ManifestFile = "manifest.json"

// ArrayHeader describes a raw float32 array file. Data is little-endian,
// row-major.
type ArrayHeader struct {
	Shape []int  `json:"shape"`
	DType string `json:"dtype"`
	Order string `json:"order"`
}

// Len is the element count
func (h ArrayHeader) Len() int {
	n := 1
	for _, d := range h.Shape {
		n *= d
	}
	return n
}

// Store is the on-disk artifact tree
type Store struct {
	root string
}

// NewStore roots a store at dir
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store directory
func (s *Store) Root() string {
	return s.root
}

// Path joins elements under the root
func (s *Store) Path(elem ...string) string {
	return filepath.Join(append([]string{s.root}, elem...)...)
}

// Exists reports whether an artifact is present
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(s.Path(rel))
	return err == nil
}

func (s *Store) create(rel string) (*os.File, error) {
	path, err := s.Prepare(rel)
	if err != nil {
		return nil, err
	}
	return os.Create(path)
}

func (s *Store) open(rel string) (*os.File, error) {
	f, err := os.Open(s.Path(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.MissingArtifact(s.Path(rel))
	}
	return f, err
}

// Prepare creates the parent directory of rel and returns its full path,
// for writers that only take a file name
func (s *Store) Prepare(rel string) (string, error) {
	path := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile writes raw bytes
func (s *Store) WriteFile(rel string, data []byte) error {
	path, err := s.Prepare(rel)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteJSON writes v indented
func (s *Store) WriteJSON(rel string, v interface{}) error {
	f, err := s.create(rel)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	return f.Close()
}

// ReadJSON decodes an artifact into v
func (s *Store) ReadJSON(rel string, v interface{}) error {
	f, err := s.open(rel)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", rel, err)
	}
	return nil
}

// WriteCSV writes rows, header first
func (s *Store) WriteCSV(rel string, rows [][]string) error {
	f, err := s.create(rel)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return f.Close()
}

// ReadCSV returns the header and the data rows
func (s *Store) ReadCSV(rel string) ([]string, [][]string, error) {
	f, err := s.open(rel)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", rel, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("read %s: no header", rel)
	}
	return rows[0], rows[1:], nil
}

// WriteArray writes data to rel (a .f32 file) and its header next to it
// as rel with a .json extension
func (s *Store) WriteArray(rel string, shape []int, data []float32) error {
	h := ArrayHeader{Shape: shape, DType: "float32", Order: "C"}
	if h.Len() != len(data) {
		return core.NewShapeError(rel, len(data), shape)
	}
	f, err := s.create(rel)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriterSize(f, 1<<20)
	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return s.WriteJSON(headerPath(rel), h)
}

// ReadArray loads an array written by WriteArray
func (s *Store) ReadArray(rel string) (ArrayHeader, []float32, error) {
	var h ArrayHeader
	if err := s.ReadJSON(headerPath(rel), &h); err != nil {
		return h, nil, err
	}
	if h.DType != "float32" || (h.Order != "" && h.Order != "C") {
		return h, nil, fmt.Errorf("%s: unsupported array %s/%s", rel, h.DType, h.Order)
	}
	f, err := s.open(rel)
	if err != nil {
		return h, nil, err
	}
	defer f.Close()
	data := make([]float32, h.Len())
	if err := binary.Read(bufio.NewReaderSize(f, 1<<20), binary.LittleEndian, data); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return h, nil, core.NewShapeError(rel, "truncated file", h.Shape)
		}
		return h, nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return h, data, nil
}

func headerPath(rel string) string {
	return rel[:len(rel)-len(filepath.Ext(rel))] + ".json"
}
