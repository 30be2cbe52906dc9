package landmark

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	localize "github.com/milosgajdos/go-localize"
)

// record is a CSV landmark record
type record struct {
	ID int     `csv:"id"`
	X  float64 `csv:"x"`
	Y  float64 `csv:"y"`
}

// txtRecord is a landmark record of whitespace separated map files which store x, y and id columns without a header
type txtRecord struct {
	X  float64 `csv:"x"`
	Y  float64 `csv:"y"`
	ID int     `csv:"id"`
}

// ReadCSV reads landmarks from CSV data with id,x,y header and returns the map.
// It returns error if the data can't be decoded or if the landmarks don't form a valid map.
func ReadCSV(r io.Reader) (*Map, error) {
	var recs []*record
	if err := gocsv.Unmarshal(r, &recs); err != nil {
		return nil, fmt.Errorf("decoding landmarks: %w", err)
	}

	lms := make([]localize.Landmark, len(recs))
	for i, rec := range recs {
		lms[i] = localize.Landmark{ID: rec.ID, X: rec.X, Y: rec.Y}
	}

	return NewMap(lms)
}

// ReadTxt reads landmarks from tab separated data with x, y and id columns and no header.
// It returns error if the data can't be decoded or if the landmarks don't form a valid map.
func ReadTxt(r io.Reader) (*Map, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = 3

	var recs []*txtRecord
	if err := gocsv.UnmarshalCSVWithoutHeaders(cr, &recs); err != nil {
		return nil, fmt.Errorf("decoding landmarks: %w", err)
	}

	lms := make([]localize.Landmark, len(recs))
	for i, rec := range recs {
		lms[i] = localize.Landmark{ID: rec.ID, X: rec.X, Y: rec.Y}
	}

	return NewMap(lms)
}

// Load loads map from the file at path. Files with .txt extension are read with ReadTxt,
// all the other files are read as CSV with ReadCSV.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening map file: %w", err)
	}
	defer f.Close()

	if filepath.Ext(path) == ".txt" {
		return ReadTxt(f)
	}

	return ReadCSV(f)
}

// WriteCSV writes map landmarks to w as CSV with id,x,y header.
func WriteCSV(m *Map, w io.Writer) error {
	recs := make([]*record, m.Len())
	for i, l := range m.landmarks {
		recs[i] = &record{ID: l.ID, X: l.X, Y: l.Y}
	}

	if err := gocsv.Marshal(recs, w); err != nil {
		return fmt.Errorf("encoding landmarks: %w", err)
	}

	return nil
}
