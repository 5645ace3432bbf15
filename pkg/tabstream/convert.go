package tabstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
)

// cancelCheckInterval is the number of rows copied between context checks.
const cancelCheckInterval = 4096

// Copy streams every remaining sheet of src into dst and returns the number
// of rows copied. When dst is a SheetWriter each source sheet after the
// first starts a new destination sheet, and destination sheets take the
// source names where the format allows them. A CSV destination receives
// the rows of all sheets in order.
func Copy(ctx context.Context, dst Writer, src Reader) (int, error) {
	return copySheets(ctx, dst, src, slog.Default())
}

func copySheets(ctx context.Context, dst Writer, src Reader, logger *slog.Logger) (int, error) {
	sw, sheeted := dst.(SheetWriter)
	total := 0
	for i := 0; ; i++ {
		info, err := src.NextSheet()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if sheeted {
			if i > 0 {
				if err := sw.AddNewSheet(); err != nil {
					return total, err
				}
			}
			if err := sw.SetSheetName(info.Name); err != nil {
				logger.Debug("keeping generated sheet name", "source", info.Name, "error", err)
			}
		}

		for row, err := range src.Rows() {
			if err != nil {
				return total, err
			}
			if err := dst.AppendRow(row); err != nil {
				return total, err
			}
			total++
			if total%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return total, err
				}
			}
		}
		logger.Debug("sheet copied", "sheet", info.Name, "rows", total)
	}
}

// Convert copies the document at src into a new document at dst, whose
// format follows its extension. The destination is only published when
// every row was copied.
func Convert(ctx context.Context, src, dst string, opts Options) (*models.WorkbookInfo, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r, _, err := OpenFile(src, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	w, format, err := CreateFile(dst, opts)
	if err != nil {
		return nil, err
	}

	n, err := copySheets(ctx, w, r, logger)
	if err != nil {
		return nil, errors.Join(err, w.Abort())
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	logger.Debug("converted", "src", src, "dst", dst, "rows", n)

	info := &models.WorkbookInfo{
		BookName: filepath.Base(dst),
		Format:   string(format),
		Sheets:   w.Sheets(),
	}
	if el, ok := w.(entryLister); ok {
		info.Entries = el.Entries()
	}
	return info, nil
}

// Inspect reads the document at path to the end and reports its sheets
// with their row counts and, for XLSX, the container entries.
func Inspect(ctx context.Context, path string, opts Options) (*models.WorkbookInfo, error) {
	r, format, err := OpenFile(path, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	info := &models.WorkbookInfo{
		BookName: filepath.Base(path),
		Format:   string(format),
	}
	if el, ok := r.(entryLister); ok {
		info.Entries = el.Entries()
	}

	for {
		sheet, err := r.NextSheet()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, err := range r.Rows() {
			if err != nil {
				return nil, err
			}
			sheet.RowCount++
			if sheet.RowCount%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
		}
		sheet.Finalized = true
		info.Sheets = append(info.Sheets, sheet)
	}
	return info, nil
}
