package cellule

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Archive entry names, also used for single-table downloads.
const (
	MembersCSV    = "membres.csv"
	AttendanceCSV = "presences.csv"
	PrayersCSV    = "prayers.csv"

	DefaultArchiveName = "cellule_data.zip"
)

// ToCSV writes t as CSV: a header row in column order, then one line per row.
// NULL values become empty cells.
func ToCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVBytes is ToCSV into memory.
func CSVBytes(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := ToCSV(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// ExportAll renders the three tables and bundles them into a zip archive.
// Nothing is returned unless all three entries were written.
func (d *Database) ExportAll(ctx context.Context) ([]byte, error) {
	sources := []struct {
		name string
		load func(context.Context) (*Table, error)
	}{
		{MembersCSV, d.MembersTable},
		{AttendanceCSV, d.AttendanceTable},
		{PrayersCSV, d.PrayersTable},
	}

	payloads := make([][]byte, len(sources))
	for i, src := range sources {
		t, err := src.load(ctx)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", src.name, err)
		}
		if payloads[i], err = CSVBytes(t); err != nil {
			return nil, fmt.Errorf("export %s: %w", src.name, err)
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, src := range sources {
		f, err := zw.Create(src.name)
		if err != nil {
			return nil, fmt.Errorf("zip %s: %w", src.name, err)
		}
		if _, err := f.Write(payloads[i]); err != nil {
			return nil, fmt.Errorf("zip %s: %w", src.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportAllToFile writes the archive next to path and renames it into place,
// so path either holds a complete archive or is left untouched.
func (d *Database) ExportAllToFile(ctx context.Context, path string) error {
	data, err := d.ExportAll(ctx)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cellule-export-*")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod archive: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move archive: %w", err)
	}
	return nil
}
