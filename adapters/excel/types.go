package excel

import "strings"

// Row is one data row keyed by trimmed header name
type Row map[string]string

// Table is a header plus data rows, as read from CSV or the first sheet of
// a workbook
type Table struct {
	Headers []string
	Rows    []Row
}

// Has reports whether the table has a column
func (t *Table) Has(col string) bool {
	for _, h := range t.Headers {
		if h == col {
			return true
		}
	}
	return false
}

// Find returns the first header equal to one of names, ignoring case
func (t *Table) Find(names ...string) (string, bool) {
	for _, n := range names {
		for _, h := range t.Headers {
			if strings.EqualFold(h, n) {
				return h, true
			}
		}
	}
	return "", false
}

// Sheet is one named worksheet to write
type Sheet struct {
	Name string
	Rows [][]string
}
