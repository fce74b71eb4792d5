// Package loader extracts page text from PDF files using tabula. Each page
// becomes one rag.Document, in page order, carrying the file identity and
// page number in its metadata.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/reader"

	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/rag"
)

// PDFLoader loads PDF files page by page. The zero value is ready to use and
// safe for concurrent use; every call opens its own reader.
type PDFLoader struct{}

// IsPDF reports whether name carries a .pdf extension (case-insensitive).
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Load is shorthand for PDFLoader{}.Load.
func Load(ctx context.Context, path string) ([]rag.Document, error) {
	return PDFLoader{}.Load(ctx, path)
}

// Load returns one Document per page of the PDF at path. A non-PDF path is a
// validation error; a missing, unreadable or corrupt file is a load error.
// A PDF without pages yields an empty slice.
func (PDFLoader) Load(ctx context.Context, path string) ([]rag.Document, error) {
	if !IsPDF(path) {
		return nil, fmt.Errorf("loader: %q is not a .pdf file: %w", filepath.Base(path), rag.ErrValidation)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("loader: stat %s: %w: %w", path, rag.ErrLoad, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("loader: %s is a directory: %w", path, rag.ErrLoad)
	}

	r, err := reader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w: %w", path, rag.ErrLoad, err)
	}
	defer r.Close()

	pageCount, err := r.PageCount()
	if err != nil {
		return nil, fmt.Errorf("loader: page count %s: %w: %w", path, rag.ErrLoad, err)
	}

	log := logging.FromContext(ctx)
	docID := filepath.Base(path)
	total := strconv.Itoa(pageCount)

	docs := make([]rag.Document, 0, pageCount)
	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("loader: %s: %w", path, err)
		}

		// FromReader leaves the reader open so every page reuses it.
		text, warnings, err := tabula.FromReader(r).Pages(page).Text()
		if err != nil {
			return nil, fmt.Errorf("loader: extract %s page %d: %w: %w", path, page, rag.ErrLoad, err)
		}
		if len(warnings) > 0 {
			log.Debug("loader: extraction warnings",
				slog.String("file", docID),
				slog.Int("page", page),
				slog.Int("warnings", len(warnings)),
			)
		}

		docs = append(docs, rag.Document{
			Content: text,
			Metadata: map[string]string{
				rag.MetaSource:     path,
				rag.MetaDocID:      docID,
				rag.MetaPage:       strconv.Itoa(page - 1),
				rag.MetaTotalPages: total,
			},
		})
	}

	log.Debug("loader: loaded pdf", slog.String("file", docID), slog.Int("pages", len(docs)))
	return docs, nil
}
