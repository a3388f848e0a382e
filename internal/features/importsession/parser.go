package importsession

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFileType rejects uploads that are not CSV, XLSX or JSON.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// ParsedLine is one input line before any matching has happened.
type ParsedLine struct {
	Title    string
	Platform string
}

// DetectFileType maps a file name to its declared type.
func DetectFileType(filename string) (FileType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FileTypeCSV, nil
	case ".xlsx":
		return FileTypeXLSX, nil
	case ".json":
		return FileTypeJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, filename)
	}
}

// ParseLines reads every input line of the uploaded file. A parse error
// here is fatal for the whole session; no rows are created from a file
// that cannot be read end to end.
func ParseLines(fileType FileType, file io.Reader) ([]ParsedLine, error) {
	switch fileType {
	case FileTypeCSV:
		return parseCSV(file)
	case FileTypeXLSX:
		return parseXLSX(file)
	case FileTypeJSON:
		return parseJSON(file)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, fileType)
	}
}

func parseCSV(file io.Reader) ([]ParsedLine, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return recordsToLines(records), nil
}

func parseXLSX(file io.Reader) ([]ParsedLine, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel rows: %w", err)
	}
	return recordsToLines(rows), nil
}

func parseJSON(file io.Reader) ([]ParsedLine, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode JSON export: %w", err)
	}

	lines := make([]ParsedLine, 0, len(raw))
	for i, element := range raw {
		var title string
		if err := json.Unmarshal(element, &title); err == nil {
			lines = append(lines, ParsedLine{Title: title})
			continue
		}

		var entry struct {
			Title    string `json:"title"`
			Name     string `json:"name"`
			Platform string `json:"platform"`
		}
		if err := json.Unmarshal(element, &entry); err != nil {
			return nil, fmt.Errorf("invalid JSON entry at index %d: %w", i, err)
		}
		if entry.Title == "" {
			entry.Title = entry.Name
		}
		lines = append(lines, ParsedLine{Title: entry.Title, Platform: entry.Platform})
	}
	return lines, nil
}

// recordsToLines converts tabular records to input lines. When the first
// row looks like a header, columns are mapped by name; otherwise the
// first column is the title and the second, if present, the platform.
func recordsToLines(records [][]string) []ParsedLine {
	if len(records) == 0 {
		return nil
	}

	titleCol, platformCol := 0, 1
	start := 0
	if cols, ok := headerColumns(records[0]); ok {
		titleCol, platformCol = cols[0], cols[1]
		start = 1
	}

	lines := make([]ParsedLine, 0, len(records)-start)
	for _, record := range records[start:] {
		var line ParsedLine
		if titleCol < len(record) {
			line.Title = record[titleCol]
		}
		if platformCol >= 0 && platformCol < len(record) {
			line.Platform = record[platformCol]
		}
		lines = append(lines, line)
	}
	return lines
}

func headerColumns(header []string) ([2]int, bool) {
	titleCol, platformCol := -1, -1
	for i, cell := range header {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "title", "name", "game":
			if titleCol == -1 {
				titleCol = i
			}
		case "platform", "system", "console":
			if platformCol == -1 {
				platformCol = i
			}
		}
	}
	if titleCol == -1 {
		return [2]int{}, false
	}
	return [2]int{titleCol, platformCol}, true
}
