package eval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/54b3r/pdfrag/internal/ingestion"
	"github.com/54b3r/pdfrag/internal/loader"
	"github.com/54b3r/pdfrag/internal/rag"
	"github.com/54b3r/pdfrag/internal/splitter"
)

// LoadCorpus loads every PDF in dir in file-name order, splits the pages and
// assigns chunk ids. Each page's doc_id is its file name. A directory
// without PDFs wraps rag.ErrLoad.
func LoadCorpus(ctx context.Context, dir string, ld ingestion.Loader, sp *splitter.Splitter) ([]rag.Chunk, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("eval: read corpus dir %s: %w: %w", dir, rag.ErrLoad, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && loader.IsPDF(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var docs []rag.Document
	for _, name := range names {
		pages, err := ld.Load(ctx, filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("eval: load %s: %w", name, err)
		}
		for _, p := range pages {
			md := rag.CloneMetadata(p.Metadata)
			md[rag.MetaDocID] = name
			docs = append(docs, rag.Document{Content: p.Content, Metadata: md})
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("eval: no PDFs found under %s: %w", dir, rag.ErrLoad)
	}
	return splitter.AssignChunkIDs(sp.Split(docs)), nil
}
