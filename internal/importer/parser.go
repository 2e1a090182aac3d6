package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Row maps a header name to the cell value of one data line.
type Row map[string]string

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// ValidDelimiter reports whether d is an accepted field separator.
func ValidDelimiter(d rune) bool {
	switch d {
	case ',', '~', ';', ':':
		return true
	}
	return false
}

// ParseFile reads a delimited file from disk.
func ParseFile(path string, delimiter rune) ([]Row, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Source: path, Err: err}
	}
	return ParseUpload(filepath.Base(path), payload, delimiter)
}

// ParseReader reads delimited text. The first record is the header.
func ParseReader(r io.Reader, delimiter rune) ([]Row, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Source: "upload", Err: err}
	}
	return parseDelimited("upload", payload, delimiter)
}

// ParseUpload picks the reader by file extension: .xlsx goes through
// excelize, everything else is delimited text.
func ParseUpload(filename string, payload []byte, delimiter rune) ([]Row, error) {
	rows, _, err := parseUpload(filename, payload, delimiter)
	return rows, err
}

// parseUpload also returns the source line each row starts on: the physical
// line for delimited text, the sheet row for xlsx.
func parseUpload(filename string, payload []byte, delimiter rune) ([]Row, []int, error) {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return parseXLSX(filename, payload)
	}
	return parseDelimitedLines(filename, payload, delimiter)
}

func parseDelimited(source string, payload []byte, delimiter rune) ([]Row, error) {
	rows, _, err := parseDelimitedLines(source, payload, delimiter)
	return rows, err
}

func parseDelimitedLines(source string, payload []byte, delimiter rune) ([]Row, []int, error) {
	if !ValidDelimiter(delimiter) {
		return nil, nil, &ParseError{Source: source, Err: ErrInvalidDelimiter}
	}

	text, err := decodeText(payload)
	if err != nil {
		return nil, nil, &ParseError{Source: source, Err: err}
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	var lines []int
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &ParseError{Source: source, Err: fmt.Errorf("failed to read csv: %w", err)}
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}
	rows, rowLines := rowsFromRecords(records, lines)
	return rows, rowLines, nil
}

func parseXLSX(source string, payload []byte) ([]Row, []int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, &ParseError{Source: source, Err: fmt.Errorf("failed to open xlsx: %w", err)}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &ParseError{Source: source, Err: errors.New("excel file has no sheets")}
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, &ParseError{Source: source, Err: fmt.Errorf("failed to read rows from xlsx: %w", err)}
	}
	lines := make([]int, len(records))
	for i := range records {
		lines[i] = i + 1
	}
	rows, rowLines := rowsFromRecords(records, lines)
	return rows, rowLines, nil
}

// decodeText strips byte order marks and converts UTF-16 and Windows-1252
// exports to UTF-8.
func decodeText(payload []byte) (string, error) {
	switch {
	case bytes.HasPrefix(payload, utf8BOM):
		payload = payload[len(utf8BOM):]
	case bytes.HasPrefix(payload, utf16LEBOM), bytes.HasPrefix(payload, utf16BEBOM):
		decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(payload)
		if err != nil {
			return "", fmt.Errorf("failed to decode utf-16: %w", err)
		}
		payload = decoded
	}

	if !utf8.Valid(payload) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(payload)
		if err != nil {
			return "", fmt.Errorf("failed to decode windows-1252: %w", err)
		}
		payload = decoded
	}
	return string(payload), nil
}

// rowsFromRecords keys each record by the header. Short records are padded
// with empty values, long ones truncated, blank lines skipped. lines holds
// the source line of each record and is filtered alongside.
func rowsFromRecords(records [][]string, lines []int) ([]Row, []int) {
	rows := []Row{}
	rowLines := []int{}
	if len(records) == 0 {
		return rows, rowLines
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	for n, record := range records[1:] {
		if blankRecord(record) {
			continue
		}
		row := make(Row, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(record) {
				row[h] = record[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
		rowLines = append(rowLines, lines[n+1])
	}
	return rows, rowLines
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
