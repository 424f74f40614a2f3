package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Format is the layout of an input file.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Dataset is a header row plus row-major string values, as read from a file.
type Dataset struct {
	Headers []string
	Rows    [][]string
}

// ReadOptions controls file decoding.
type ReadOptions struct {
	// Format overrides detection from the file extension.
	Format Format
	// Delimiter is the CSV field separator. Zero means ',' (or tab for .tsv).
	Delimiter rune
	// Encoding is a WHATWG encoding label such as "latin1" or "windows-1252".
	// Empty means UTF-8. A byte order mark always wins.
	Encoding string
}

// DetectFormat picks a format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", core.ErrInput("unsupported file type %q (expected .csv, .tsv, .txt or .json)", filepath.Ext(path))
	}
}

// ReadFile reads a CSV or JSON dataset from path.
func ReadFile(path string, opts ReadOptions) (*Dataset, error) {
	if opts.Format == "" {
		f, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		opts.Format = f
	}
	if opts.Delimiter == 0 && strings.EqualFold(filepath.Ext(path), ".tsv") {
		opts.Delimiter = '\t'
	}

	f, err := os.Open(path) //nolint:gosec // path is provided by the user
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	ds, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

// Read decodes a dataset from r.
func Read(r io.Reader, opts ReadOptions) (*Dataset, error) {
	dec, err := decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	r = transform.NewReader(r, unicode.BOMOverride(dec.Transformer))

	switch opts.Format {
	case FormatJSON:
		return readJSON(r)
	case FormatCSV, "":
		return readCSV(r, opts.Delimiter)
	default:
		return nil, core.ErrInput("unsupported format %q", opts.Format)
	}
}

func decoder(label string) (*encoding.Decoder, error) {
	if label == "" {
		return unicode.UTF8.NewDecoder(), nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, core.ErrInput("unknown encoding %q", label)
	}
	return enc.NewDecoder(), nil
}

func readCSV(r io.Reader, delimiter rune) (*Dataset, error) {
	cr := csv.NewReader(r)
	if delimiter != 0 {
		cr.Comma = delimiter
	}
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, core.ErrInput("file is empty")
	}
	if err != nil {
		return nil, core.ErrInput("invalid CSV header: %v", err)
	}

	ds := &Dataset{Headers: headers}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.ErrInput("invalid CSV: %v", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && len(headers) > 1 {
			continue
		}
		ds.Rows = append(ds.Rows, rec)
	}
	return ds, nil
}

// readJSON reads an array of flat objects. Headers are the union of keys in
// first-seen order. Nested values are kept as JSON text and null is missing.
func readJSON(r io.Reader) (*Dataset, error) {
	var items []json.RawMessage
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, core.ErrInput("expected a JSON array of objects: %v", err)
	}

	ds := &Dataset{}
	index := make(map[string]int)
	records := make([]map[string]string, 0, len(items))
	for i, item := range items {
		rec, keys, err := decodeObject(item)
		if err != nil {
			return nil, core.ErrInput("record %d: %v", i+1, err)
		}
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(ds.Headers)
				ds.Headers = append(ds.Headers, k)
			}
		}
		records = append(records, rec)
	}
	if len(ds.Headers) == 0 {
		return nil, core.ErrInput("file has no fields")
	}

	for _, rec := range records {
		row := make([]string, len(ds.Headers))
		for k, v := range rec {
			row[index[k]] = v
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func decodeObject(data json.RawMessage) (map[string]string, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected an object")
	}

	rec := make(map[string]string)
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		if _, dup := rec[key]; !dup {
			keys = append(keys, key)
		}
		rec[key] = jsonValue(raw)
	}
	return rec, keys, nil
}

func jsonValue(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return ""
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}
