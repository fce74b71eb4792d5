package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/54b3r/pdfrag/internal/loader"
	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/rag"
	"github.com/54b3r/pdfrag/internal/store"
)

// multipartMemory is the part of an upload kept in memory before spilling
// to a temporary file.
const multipartMemory = 8 << 20

// Limits for GET /v1/documents/uploads.
const (
	defaultUploadsLimit = 20
	maxUploadsLimit     = 1000
)

// handleUpload handles POST /v1/documents. The multipart field "file" must
// carry a .pdf file name; anything else is rejected before a byte is
// written. Accepted files are stored under RawDir by base name, ingested
// into the collection and recorded in the upload log.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, r, http.StatusRequestEntityTooLarge,
				errorResponse{Error: fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes)})
			return
		}
		writeError(w, r, fmt.Errorf("server: invalid multipart body: %w: %w", rag.ErrValidation, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("server: multipart field \"file\" is required: %w", rag.ErrValidation))
		return
	}
	defer file.Close()

	name := filepath.Base(filepath.Clean("/" + hdr.Filename))
	if name == "/" || name == "." || !loader.IsPDF(name) {
		writeError(w, r, fmt.Errorf("server: only PDF files are accepted, got %q: %w", hdr.Filename, rag.ErrValidation))
		return
	}

	saved, err := s.saveUpload(name, file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.ingester.IngestFile(r.Context(), saved.path)
	if err != nil {
		// A rejected file must not stay in RawDir for watchers to retry.
		if rbErr := saved.rollback(); rbErr != nil {
			log.Error("upload rollback failed", slog.String("filename", name), slog.Any("error", rbErr))
		}
		writeError(w, r, err)
		return
	}
	saved.keep()

	up := store.Upload{
		Filename:   name,
		Collection: s.index.Name(),
		NumDocs:    res.NumDocs,
		NumChunks:  res.NumChunks,
		UploadedAt: time.Now().UTC(),
	}
	if s.uploads != nil {
		if err := s.uploads.Record(r.Context(), up); err != nil {
			// The document stays indexed when the log write fails.
			log.Error("upload log record failed", slog.String("filename", name), slog.Any("error", err))
		}
	}

	log.Info("document ingested",
		slog.String("filename", name),
		slog.String("collection", up.Collection),
		slog.Int("num_docs", res.NumDocs),
		slog.Int("chunks", res.NumChunks),
	)
	writeJSON(w, r, http.StatusCreated, up)
}

// savedUpload is an upload moved into RawDir. Until keep is called,
// rollback restores the directory to its state before the upload.
type savedUpload struct {
	path string
	// backup holds the file previously stored under the same name, if any.
	backup string
}

func (u savedUpload) keep() {
	if u.backup != "" {
		_ = os.Remove(u.backup)
	}
}

func (u savedUpload) rollback() error {
	if u.backup != "" {
		return os.Rename(u.backup, u.path)
	}
	return os.Remove(u.path)
}

// saveUpload writes src to RawDir/name through a hidden temporary file and
// an atomic rename, so directory watchers never see a partial PDF. A file
// already stored under name is set aside under a hidden name.
func (s *Server) saveUpload(name string, src io.Reader) (savedUpload, error) {
	if err := os.MkdirAll(s.cfg.RawDir, 0o755); err != nil {
		return savedUpload{}, fmt.Errorf("server: create raw dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.cfg.RawDir, ".upload-*")
	if err != nil {
		return savedUpload{}, fmt.Errorf("server: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return savedUpload{}, fmt.Errorf("server: write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return savedUpload{}, fmt.Errorf("server: write upload: %w", err)
	}

	u := savedUpload{path: filepath.Join(s.cfg.RawDir, name)}
	if _, err := os.Stat(u.path); err == nil {
		u.backup = filepath.Join(s.cfg.RawDir, ".prev-"+name)
		if err := os.Rename(u.path, u.backup); err != nil {
			return savedUpload{}, fmt.Errorf("server: set aside %s: %w", name, err)
		}
	}
	if err := os.Rename(tmp.Name(), u.path); err != nil {
		if u.backup != "" {
			_ = os.Rename(u.backup, u.path)
		}
		return savedUpload{}, fmt.Errorf("server: store upload: %w", err)
	}
	return u, nil
}

// handleStats handles GET /v1/documents.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.index.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// handleUploads handles GET /v1/documents/uploads?limit=N.
func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "upload log is disabled"})
		return
	}

	limit := defaultUploadsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, fmt.Errorf("server: limit must be a positive integer, got %q: %w", v, rag.ErrValidation))
			return
		}
		limit = min(n, maxUploadsLimit)
	}

	ups, err := s.uploads.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ups == nil {
		ups = []store.Upload{}
	}
	writeJSON(w, r, http.StatusOK, uploadsResponse{Uploads: ups})
}
