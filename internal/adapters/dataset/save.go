package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/okian/dosewatch/internal/domain/record"
	"github.com/xuri/excelize/v2"
)

const (
	outputDirPermission  = 0o755
	outputFilePermission = 0o644
	sheetName            = "Sheet1"
)

// OutputColumns returns the input column order plus the derived mean dose
// column, unless the input already carried it.
func OutputColumns(columns []string) []string {
	out := append([]string(nil), columns...)
	for _, c := range columns {
		if c == record.ColMeanDose {
			return out
		}
	}
	if len(out) == 0 {
		out = append(out, record.RequiredColumns...)
	}
	return append(out, record.ColMeanDose)
}

// Save overwrites path with rows. The file is written next to path first
// and renamed into place, so readers never see a partial file.
func Save(ctx context.Context, path string, columns []string, rows []record.Annotated) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cols := OutputColumns(columns)
	table := make([][]string, 0, len(rows)+1)
	table = append(table, cols)
	for _, r := range rows {
		line := make([]string, len(cols))
		for i, c := range cols {
			line[i] = r.Value(c)
		}
		table = append(table, line)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, outputDirPermission); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	err = tmp.Chmod(outputFilePermission)
	if err == nil {
		err = writeTable(tmp, format, table)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func writeTable(w io.Writer, format string, table [][]string) error {
	if format == FormatXLSX {
		return writeXLSX(w, table)
	}
	return writeCSV(w, table)
}

func writeCSV(f io.Writer, table [][]string) error {
	w := csv.NewWriter(f)
	if err := w.WriteAll(table); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, table [][]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range table {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}
