// internal/loader/loader_test.go
package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nelakvee/recordsync/api/schemas"
	"github.com/nelakvee/recordsync/internal/config"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		idx, err := f.NewSheet(sheet)
		require.NoError(t, err)
		f.SetActiveSheet(idx)
	}
	for r, row := range rows {
		for c, v := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, name, v))
		}
	}
	path := filepath.Join(t.TempDir(), "input.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoad_Workbook(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]any{
		{"Site ID", "Vendor"},
		{" 1001 ", "Acme Power"},
		{"", "skipped"},
		{1002, "Beta Gas "},
		{"1003"},
	})

	items, err := Load(config.InputConfig{Path: path, KeyColumn: 0, LabelColumn: 1})
	require.NoError(t, err)

	want := []schemas.WorkItem{
		{Key: "1001", ExpectedLabel: "Acme Power", Row: 2},
		{Key: "1002", ExpectedLabel: "Beta Gas", Row: 4},
		{Key: "1003", ExpectedLabel: "", Row: 5},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_WorkbookSheetSelection(t *testing.T) {
	path := writeWorkbook(t, "Sites", [][]any{
		{"Vendor", "Site"},
		{"Acme", "77"},
	})

	t.Run("active sheet by default", func(t *testing.T) {
		items, err := Load(config.InputConfig{Path: path, KeyColumn: 1, LabelColumn: 0})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "77", items[0].Key)
		assert.Equal(t, "Acme", items[0].ExpectedLabel)
	})

	t.Run("missing sheet", func(t *testing.T) {
		_, err := Load(config.InputConfig{Path: path, Sheet: "Nope", LabelColumn: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"Nope"`)
	})
}

func TestLoad_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.csv")
	content := "key,label\nA-1, Vendor One\n,\nA-2,\"Vendor, Two\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	items, err := Load(config.InputConfig{Path: path, KeyColumn: 0, LabelColumn: 1})
	require.NoError(t, err)
	want := []schemas.WorkItem{
		{Key: "A-1", ExpectedLabel: "Vendor One", Row: 2},
		{Key: "A-2", ExpectedLabel: "Vendor, Two", Row: 4},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(config.InputConfig{Path: "items.txt", LabelColumn: 1})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(config.InputConfig{Path: filepath.Join(t.TempDir(), "none.csv"), LabelColumn: 1})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("negative column", func(t *testing.T) {
		_, err := Load(config.InputConfig{Path: "x.csv", KeyColumn: -1})
		assert.Error(t, err)
	})

	t.Run("header only", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "input.csv")
		require.NoError(t, os.WriteFile(path, []byte("key,label\n"), 0o644))
		items, err := Load(config.InputConfig{Path: path, LabelColumn: 1})
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}
