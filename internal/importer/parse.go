package importer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeJSON = "application/json"
	mimeCSV  = "text/csv"
	mimeText = "text/plain"
)

var ErrUnsupportedFormat = errors.New("unsupported file format (xlsx, csv or json expected)")

// ParseUpload turns an uploaded file into a sheet. The format is sniffed from
// the content; the file name only breaks ties for plain text.
// Blank lines are skipped but keep their place in the line numbering.
func ParseUpload(data []byte, filename string) (*Sheet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty file")
	}
	mt := mimetype.Detect(data)
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case isA(mt, mimeXLSX), ext == ".xlsx" && isA(mt, "application/zip"):
		return parseXLSX(data)
	case isA(mt, mimeJSON) || ext == ".json":
		return parseJSON(data)
	case isA(mt, mimeCSV) || isA(mt, mimeText) || ext == ".csv":
		return parseCSV(data)
	default:
		return nil, fmt.Errorf("%w: detected %s", ErrUnsupportedFormat, mt.String())
	}
}

func isA(mt *mimetype.MIME, mime string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(mime) {
			return true
		}
	}
	return false
}

func parseXLSX(data []byte) (*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("spreadsheet has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	// GetRows keeps empty rows between data rows, so index i is row i+1
	lines := make([]int, len(records))
	for i := range records {
		lines[i] = i + 1
	}
	return sheetFromRecords(records, lines)
}

func parseCSV(data []byte) (*Sheet, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return sheetFromRecords(records, lines)
}

// sniffDelimiter picks ';' for French Excel exports, ',' otherwise
func sniffDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	if bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")) {
		return ';'
	}
	return ','
}

func parseJSON(data []byte) (*Sheet, error) {
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		var wrapped struct {
			Rows []Row `json:"rows"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
		rows = wrapped.Rows
	}
	return &Sheet{Rows: rows}, nil
}

// sheetFromRecords uses the first non-blank record as the header. lines[i]
// is the spreadsheet line of records[i].
func sheetFromRecords(records [][]string, lines []int) (*Sheet, error) {
	start := 0
	for start < len(records) && blank(records[start]) {
		start++
	}
	if start == len(records) {
		return nil, errors.New("file has no header row")
	}
	header := records[start]

	sheet := &Sheet{
		Header: header,
		Rows:   make([]Row, 0, len(records)-start-1),
		Lines:  make([]int, 0, len(records)-start-1),
	}
	for i := start + 1; i < len(records); i++ {
		rec := records[i]
		if blank(rec) {
			continue
		}
		row := make(Row, len(header))
		for col, h := range header {
			if strings.TrimSpace(h) == "" {
				continue
			}
			// a repeated header keeps its leftmost column
			if _, dup := row[h]; dup {
				continue
			}
			cell := ""
			if col < len(rec) {
				cell = rec[col]
			}
			row[h] = cell
		}
		sheet.Rows = append(sheet.Rows, row)
		sheet.Lines = append(sheet.Lines, lines[i])
	}
	return sheet, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
