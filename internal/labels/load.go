package labels

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/csimplestring/go-csv/detector"

	"github.com/banshee-data/tagging-eval/internal/monitoring"
	"github.com/banshee-data/tagging-eval/internal/taxonomy"
)

// sheet is a parsed delimited file: header plus records.
type sheet struct {
	header  map[string]int
	records [][]string
}

// preferred delimiters, in order, when the detector proposes several.
var preferredDelimiters = []string{",", "\t", ";", "|"}

// sniffDelimiter returns the most likely delimiter of data, falling back to ','.
func sniffDelimiter(data []byte) rune {
	candidates := detector.New().DetectDelimiter(bytes.NewReader(data), '"')
	for _, want := range preferredDelimiters {
		for _, got := range candidates {
			if got == want {
				return rune(want[0])
			}
		}
	}
	return ','
}

func readSheet(r io.Reader) (*sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	all, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse delimited text: %w", err)
	}
	if len(all) == 0 {
		return nil, errors.New("empty file: no header row")
	}

	header := make(map[string]int, len(all[0]))
	for i, name := range all[0] {
		header[strings.TrimSpace(name)] = i
	}
	return &sheet{header: header, records: all[1:]}, nil
}

// columnNamer maps a tag to its header in one kind of file.
type columnNamer func(taxonomy.Tag) (string, bool)

// extract reads every column of the mode's layout from rows of s.
// Tags the taxonomy does not name (incomplete markers of categories
// without one) are all zero; named tags absent from the header are all
// zero and reported.
func (s *sheet) extract(tax *taxonomy.Taxonomy, mode taxonomy.Mode, name columnNamer, rows []int) ([][]float64, []Warning, error) {
	tags := tax.Columns(mode).Tags()
	values := make([][]float64, len(tags))
	var warnings []Warning

	for c, tag := range tags {
		col := make([]float64, len(rows))
		values[c] = col

		header, named := name(tag)
		if !named {
			continue
		}
		idx, ok := s.header[header]
		if !ok {
			warnings = append(warnings, Warning{Err: ErrMissingColumn, Tag: tag, Column: header})
			monitoring.Warnf("column not found: %s", header)
			continue
		}
		for i, r := range rows {
			v, err := parseCell(s.records[r], idx)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d column %q: %w", r+2, header, err)
			}
			col[i] = v
		}
	}
	return values, warnings, nil
}

func parseCell(record []string, idx int) (float64, error) {
	if idx >= len(record) {
		return 0, nil
	}
	cell := strings.TrimSpace(record[idx])
	if cell == "" {
		return 0, nil
	}
	return strconv.ParseFloat(cell, 64)
}

func (s *sheet) sampleIDs(rows []int) ([]string, error) {
	idx, ok := s.header[taxonomy.SampleColumn]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, taxonomy.SampleColumn)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		if idx >= len(s.records[r]) {
			return nil, fmt.Errorf("row %d: missing %s", r+2, taxonomy.SampleColumn)
		}
		ids[i] = strings.TrimSpace(s.records[r][idx])
	}
	return ids, nil
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// LoadPredictions reads a predictions file: one row per sample, an
// audio_filename column, and one score column per tag named as by
// Taxonomy.PredictionColumn.
func LoadPredictions(r io.Reader, tax *taxonomy.Taxonomy, mode taxonomy.Mode) (*Table, []Warning, error) {
	s, err := readSheet(r)
	if err != nil {
		return nil, nil, fmt.Errorf("predictions: %w", err)
	}
	rows := allRows(len(s.records))
	ids, err := s.sampleIDs(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("predictions: %w", err)
	}
	values, warnings, err := s.extract(tax, mode, tax.PredictionColumn, rows)
	if err != nil {
		return nil, nil, fmt.Errorf("predictions: %w", err)
	}
	t, err := NewTable(tax, mode, ids, values)
	if err != nil {
		return nil, nil, fmt.Errorf("predictions: %w", err)
	}
	return t, warnings, nil
}

// LoadGroundTruth reads an annotations file and keeps the rows of a single
// reference annotator (annotator_id == annotatorID). Presence columns are
// named as by Taxonomy.AnnotationColumn.
func LoadGroundTruth(r io.Reader, tax *taxonomy.Taxonomy, mode taxonomy.Mode, annotatorID int) (*Table, []Warning, error) {
	s, err := readSheet(r)
	if err != nil {
		return nil, nil, fmt.Errorf("annotations: %w", err)
	}
	aidx, ok := s.header[taxonomy.AnnotatorColumn]
	if !ok {
		return nil, nil, fmt.Errorf("annotations: %w: %s", ErrMissingColumn, taxonomy.AnnotatorColumn)
	}

	var rows []int
	for i, rec := range s.records {
		if aidx >= len(rec) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[aidx]))
		if err != nil {
			return nil, nil, fmt.Errorf("annotations: row %d %s: %w", i+2, taxonomy.AnnotatorColumn, err)
		}
		if id == annotatorID {
			rows = append(rows, i)
		}
	}

	ids, err := s.sampleIDs(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("annotations: %w", err)
	}
	values, warnings, err := s.extract(tax, mode, tax.AnnotationColumn, rows)
	if err != nil {
		return nil, nil, fmt.Errorf("annotations: %w", err)
	}
	t, err := NewTable(tax, mode, ids, values)
	if err != nil {
		return nil, nil, fmt.Errorf("annotations: %w", err)
	}
	return t, warnings, nil
}

// LoadPredictionsFile opens path and calls LoadPredictions.
func LoadPredictionsFile(path string, tax *taxonomy.Taxonomy, mode taxonomy.Mode) (*Table, []Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open predictions: %w", err)
	}
	defer f.Close()
	return LoadPredictions(f, tax, mode)
}

// LoadGroundTruthFile opens path and calls LoadGroundTruth.
func LoadGroundTruthFile(path string, tax *taxonomy.Taxonomy, mode taxonomy.Mode, annotatorID int) (*Table, []Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open annotations: %w", err)
	}
	defer f.Close()
	return LoadGroundTruth(f, tax, mode, annotatorID)
}
