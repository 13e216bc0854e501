package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Series is an ordered run of note indices, one per time step.
type Series []float64

// ReadOptions controls how a series artifact is parsed.
type ReadOptions struct {
	// SkipRows leading records are discarded before parsing (count or header rows).
	SkipRows int
	// Source names the artifact in errors.
	Source string
}

// LoadSeries reads a single-feature series from the CSV file at path.
func LoadSeries(path string, skipRows int) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open series: %w", err)
	}
	defer f.Close()
	return ReadSeries(f, ReadOptions{SkipRows: skipRows, Source: path})
}

// ReadSeries parses a CSV series laid out either as one column (one value
// per record) or as one record holding every value. A first record that
// does not parse as a number is taken to be a header and dropped.
func ReadSeries(r io.Reader, opts ReadOptions) (Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, formatErr(opts.Source, len(records), fmt.Errorf("%w: %v", ErrBadValue, err))
		}
		records = append(records, rec)
	}

	offset := opts.SkipRows
	if offset > len(records) {
		offset = len(records)
	}
	records = records[offset:]

	if len(records) > 1 && len(records[0]) == 1 {
		if _, err := parseCell(records[0][0]); err != nil {
			records = records[1:]
			offset++
		}
	}
	if len(records) == 0 {
		return Series{}, nil
	}

	if len(records) == 1 && len(records[0]) > 1 {
		out := make(Series, 0, len(records[0]))
		for i, cell := range records[0] {
			v, err := parseCell(cell)
			if err != nil {
				return nil, formatErr(opts.Source, i, err)
			}
			out = append(out, v)
		}
		return out, nil
	}

	out := make(Series, 0, len(records))
	for i, rec := range records {
		if len(rec) != 1 {
			return nil, formatErr(opts.Source, offset+i, fmt.Errorf("%w: record has %d fields", ErrShape, len(rec)))
		}
		v, err := parseCell(rec[0])
		if err != nil {
			return nil, formatErr(opts.Source, offset+i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseCell(cell string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, cell)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, cell)
	}
	return v, nil
}
