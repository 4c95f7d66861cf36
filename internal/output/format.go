// Package output renders report records as CSV, JSON, a terminal table or
// an Excel workbook.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/henrybloomingdale/getpapers/internal/papers"
)

// Formats accepted by WriteReport.
const (
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatTable = "table"
)

// ReportConfig controls where and how records are written.
type ReportConfig struct {
	File     string // Write here instead of stdout (create or truncate)
	Format   string // csv (default), json or table
	XLSXFile string // Also export an Excel workbook to this path
}

// WriteReport writes records in cfg.Format to cfg.File, or to stdout when
// no file is set, and then exports the workbook if requested.
func WriteReport(cfg ReportConfig, stdout io.Writer, records []papers.Record) error {
	format := cfg.Format
	if format == "" {
		format = FormatCSV
	}

	if cfg.File != "" {
		if format == FormatTable {
			return fmt.Errorf("table format cannot be written to a file")
		}
		if err := writeFile(cfg.File, func(w io.Writer) error {
			return writeFormat(w, format, records)
		}); err != nil {
			return err
		}
	} else if err := writeFormat(stdout, format, records); err != nil {
		return err
	}

	if cfg.XLSXFile != "" {
		if err := WriteXLSX(cfg.XLSXFile, records); err != nil {
			return fmt.Errorf("XLSX export failed: %w", err)
		}
	}
	return nil
}

func writeFormat(w io.Writer, format string, records []papers.Record) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatJSON:
		return writeJSON(w, records)
	case FormatTable:
		return FormatTableView(w, records)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// writeFile creates or truncates path with mode 0644 and hands it to fn.
func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
