// Package csvout renders AQS rows as CSV and stores them through a BlobStore.
package csvout

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/JakeFAU/aqsharvest/internal/aqs"
	"github.com/JakeFAU/aqsharvest/internal/storage"
)

// ContentType is the MIME type attached to stored objects.
const ContentType = "text/csv"

// Result describes one encoded file.
type Result struct {
	Header []string
	Rows   int
	// DroppedFields counts values in later rows whose key is not in the header.
	DroppedFields int
}

// Encode writes rows with a header taken from the first row's keys in order.
// Rows missing a header key get an empty cell. Empty input writes nothing.
func Encode(w io.Writer, rows []aqs.Row) (Result, error) {
	if len(rows) == 0 {
		return Result{}, nil
	}
	header := rows[0].Keys()
	res := Result{Header: header}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return res, fmt.Errorf("write csv header: %w", err)
	}
	known := make(map[string]struct{}, len(header))
	for _, k := range header {
		known[k] = struct{}{}
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, k := range header {
			v, _ := row.Get(k)
			record[i] = v
		}
		for _, k := range row.Keys() {
			if _, ok := known[k]; !ok {
				res.DroppedFields++
			}
		}
		if err := cw.Write(record); err != nil {
			return res, fmt.Errorf("write csv row %d: %w", res.Rows+1, err)
		}
		res.Rows++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return res, fmt.Errorf("flush csv: %w", err)
	}
	return res, nil
}

// Writer stores encoded CSV files.
type Writer struct {
	store storage.BlobStore
}

// NewWriter returns a Writer backed by store.
func NewWriter(store storage.BlobStore) *Writer {
	return &Writer{store: store}
}

// Write encodes rows and stores them at path. It returns written=false and
// touches nothing when rows is empty.
func (w *Writer) Write(ctx context.Context, path string, rows []aqs.Row) (string, Result, bool, error) {
	if len(rows) == 0 {
		return "", Result{}, false, nil
	}
	var buf bytes.Buffer
	res, err := Encode(&buf, rows)
	if err != nil {
		return "", res, false, err
	}
	uri, err := w.store.PutObject(ctx, path, ContentType, &buf)
	if err != nil {
		return "", res, false, fmt.Errorf("store %s: %w", path, err)
	}
	return uri, res, true, nil
}
