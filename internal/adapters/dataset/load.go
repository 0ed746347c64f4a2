// Package dataset reads and writes dose tables as CSV or XLSX files.
package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/dosewatch/internal/domain/record"
	"github.com/xuri/excelize/v2"
)

// Supported file formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const defaultFetchTimeout = 30 * time.Second

// Report counts values that degraded to null while parsing.
type Report struct {
	Rows             int
	UnparsedDates    int
	UnparsedDosages  int
	EmptyDosages     int
	SkippedBlankRows int
}

// Loader reads a dataset from a local path or an http(s) URL.
type Loader struct {
	client *http.Client
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHTTPClient sets the client used for URL sources.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithFetchTimeout sets the timeout used for URL sources.
func WithFetchTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.client = &http.Client{Timeout: d}
		}
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{client: &http.Client{Timeout: defaultFetchTimeout}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsURL reports whether source points at a remote dataset.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// FormatOf returns the file format implied by the extension of name.
func FormatOf(name string) (string, error) {
	if IsURL(name) {
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
		name = path.Base(name)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// Load reads the dataset at source.
func (l *Loader) Load(ctx context.Context, source string) (*record.Table, Report, error) {
	format, err := FormatOf(source)
	if err != nil {
		return nil, Report{}, err
	}
	data, err := l.read(ctx, source)
	if err != nil {
		return nil, Report{}, err
	}
	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(data)
	default:
		rows, err = readCSV(data)
	}
	if err != nil {
		return nil, Report{}, err
	}
	return Parse(rows)
}

func (l *Loader) read(ctx context.Context, source string) ([]byte, error) {
	if !IsURL(source) {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read dataset %s: %w", source, err)
		}
		return data, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetch, source, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return data, nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyDataset
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// Parse converts raw rows, header first, into a table. Dates that do not
// parse and dosages that are empty or non-numeric become nil. Missing
// required columns are an error.
func Parse(rows [][]string) (*record.Table, Report, error) {
	var rep Report
	if len(rows) == 0 {
		return nil, rep, ErrEmptyDataset
	}
	header := make([]string, len(rows[0]))
	index := make(map[string]int, len(header))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		header[i] = h
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	for _, col := range record.RequiredColumns {
		if _, ok := index[col]; !ok {
			return nil, rep, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}

	cell := func(row []string, col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	t := &record.Table{Columns: header, Records: make([]record.Record, 0, len(rows)-1)}
	for _, row := range rows[1:] {
		if blank(row) {
			rep.SkippedBlankRows++
			continue
		}
		rep.Rows++
		r := record.Record{
			ExamName: cell(row, record.ColExamName),
			AgeGroup: cell(row, record.ColAgeGroup),
		}
		if raw := cell(row, record.ColBookedDate); raw != "" {
			if r.BookedDate = record.ParseDate(raw); r.BookedDate == nil {
				rep.UnparsedDates++
			}
		} else {
			rep.UnparsedDates++
		}
		raw := cell(row, record.ColDosage)
		r.Dosage = record.ParseDosage(raw)
		switch {
		case raw == "":
			rep.EmptyDosages++
		case r.Dosage == nil:
			rep.UnparsedDosages++
		}
		for i, h := range header {
			if isRequired(h) || h == record.ColMeanDose || i >= len(row) {
				continue
			}
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[h] = row[i]
		}
		t.Records = append(t.Records, r)
	}
	return t, rep, nil
}

func isRequired(col string) bool {
	for _, c := range record.RequiredColumns {
		if c == col {
			return true
		}
	}
	return false
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
