// internal/loader/loader.go
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nelakvee/recordsync/api/schemas"
	"github.com/nelakvee/recordsync/internal/config"
)

// ErrUnsupportedFormat is returned for input files that are neither xlsx nor csv.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// Load reads work items from the file named in cfg. The first row is a
// header; rows with an empty key are skipped. A missing label cell yields
// an empty ExpectedLabel.
func Load(cfg config.InputConfig) ([]schemas.WorkItem, error) {
	if cfg.KeyColumn < 0 || cfg.LabelColumn < 0 {
		return nil, fmt.Errorf("input columns must be non-negative (key=%d, label=%d)", cfg.KeyColumn, cfg.LabelColumn)
	}

	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(cfg.Path)); ext {
	case ".xlsx", ".xlsm":
		rows, err = readWorkbook(cfg.Path, cfg.Sheet)
	case ".csv":
		rows, err = readCSV(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return toItems(rows, cfg.KeyColumn, cfg.LabelColumn), nil
}

func readWorkbook(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q from %s: %w", sheet, path, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
}

func toItems(rows [][]string, keyCol, labelCol int) []schemas.WorkItem {
	items := make([]schemas.WorkItem, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue
		}
		key := cell(row, keyCol)
		if key == "" {
			continue
		}
		items = append(items, schemas.WorkItem{
			Key:           key,
			ExpectedLabel: cell(row, labelCol),
			Row:           i + 1,
		})
	}
	return items
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
