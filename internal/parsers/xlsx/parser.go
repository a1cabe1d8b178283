package xlsx

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/kosarica/feed-service/internal/parsers/charset"
	"github.com/kosarica/feed-service/internal/parsers/csv"
)

// MIMEType is the content type of an Office Open XML workbook.
const MIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Parse reads the first sheet that has any content. The first non-empty row
// is the header. Trailing empty cells are not stored in a workbook, so short
// rows are padded; rows longer than the header are skipped.
func Parse(data []byte) (*csv.Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	result := &csv.Result{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		if fillResult(result, rows) {
			log.Debug().
				Str("sheet", sheet).
				Int("rows", len(result.Rows)).
				Int("skipped", result.Skipped).
				Msg("Workbook sheet parsed")
			return result, nil
		}
	}
	return result, nil
}

// fillResult reports whether rows contained a header.
func fillResult(result *csv.Result, rows [][]string) bool {
	headerIdx := -1
	for i, row := range rows {
		if !isEmptyRow(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return false
	}

	headers := make([]string, len(rows[headerIdx]))
	for i, h := range rows[headerIdx] {
		headers[i] = strings.TrimSpace(charset.StripBOMString(h))
	}
	result.Headers = headers

	for _, row := range rows[headerIdx+1:] {
		if isEmptyRow(row) {
			continue
		}
		if len(row) > len(headers) {
			result.Skipped++
			continue
		}
		record := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if _, dup := record[h]; dup {
				continue
			}
			if i < len(row) {
				record[h] = strings.TrimSpace(row[i])
			} else {
				record[h] = ""
			}
		}
		result.Rows = append(result.Rows, record)
	}
	return true
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
