package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"petadopt/internal/storage"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultMaxUploadMB = 32
	// multipart parts above this size spill to temporary files
	multipartMemory = 8 << 20
)

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func (d Dependencies) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	limit := d.MaxUploadMB
	if limit <= 0 {
		limit = defaultMaxUploadMB
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d MB", limit)
		}
		return fmt.Errorf("invalid multipart form: %w", err)
	}
	return nil
}

// formUploads opens every file sent under field. The returned func closes
// them and is safe to call on error.
func formUploads(r *http.Request, field string) ([]storage.Upload, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	if r.MultipartForm == nil {
		return nil, closeAll, nil
	}

	headers := r.MultipartForm.File[field]
	uploads := make([]storage.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
		}
		opened = append(opened, f)
		uploads = append(uploads, storage.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}

// Files serves objects of the local blob store. It is mounted at /files so
// the URLs the store hands out resolve.
func Files(blobs storage.Storage, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "*")
		rc, err := blobs.Get(req.Context(), name)
		if err != nil {
			WriteError(w, http.StatusNotFound, "not_found", "File not found", log)
			return
		}
		defer rc.Close()

		contentType := mime.TypeByExtension(path.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if _, err := io.Copy(w, rc); err != nil {
			log.Warn("Failed to stream file", zap.String("name", name), zap.Error(err))
		}
	})
	return r
}
