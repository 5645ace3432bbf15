// Package server exposes document conversion over HTTP.
//
// An upload is spooled to a temporary file, since the packaged format
// needs random access to its central directory, and the converted document
// is streamed straight into the response.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ukaji3/tabstream-go/internal/config"
	"github.com/ukaji3/tabstream-go/internal/logging"
	"github.com/ukaji3/tabstream-go/pkg/tabstream"
)

// Content types of converted documents.
var contentTypes = map[tabstream.Format]string{
	tabstream.FormatCSV:  "text/csv; charset=utf-8",
	tabstream.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// rowsTrailer carries the number of converted rows once the body is sent.
const rowsTrailer = "X-Tabstream-Rows"

// Server is the HTTP conversion service.
type Server struct {
	cfg    *config.Config
	opts   tabstream.Options
	router *chi.Mux
	server *http.Server
}

// New creates a Server from cfg.
func New(cfg *config.Config) *Server {
	s := &Server{
		cfg:    cfg,
		opts:   cfg.Options(),
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/convert", s.handleConvert)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.cfg.Server.Addr,
		Handler:     s.router,
		ReadTimeout: s.cfg.Server.ReadTimeout,
	}
	slog.Info("server starting", "addr", s.cfg.Server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleConvert converts the uploaded document into the format named by
// the "to" query parameter. The upload is either the raw request body,
// named by the "name" query parameter, or the "file" part of a multipart
// form.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	to, err := tabstream.ParseFormat(r.URL.Query().Get("to"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "query parameter \"to\" must be csv or xlsx")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	spool, name, err := s.spoolUpload(r)
	if spool != "" {
		defer os.RemoveAll(spool)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", s.cfg.Server.MaxUploadBytes))
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, err.Error())
		return
	}

	logger := logging.WithFields(r.Context(), "upload", name, "to", string(to))
	opts := s.opts
	opts.Logger = logger

	src, from, err := tabstream.OpenFile(filepath.Join(spool, spoolName(name)), opts)
	if err != nil {
		writeError(r.Context(), w, statusFor(err), err.Error())
		return
	}
	defer src.Close()

	dst, err := tabstream.NewWriter(to, opts)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, err.Error())
		return
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = "converted"
	}
	w.Header().Set("Content-Type", contentTypes[to])
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": base + "." + string(to)}))
	w.Header().Set("Trailer", rowsTrailer)

	body := &bodyWriter{w: w}
	if err := dst.OpenWriter(body); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, err.Error())
		return
	}
	n, err := tabstream.Copy(r.Context(), dst, src)
	if err == nil {
		err = dst.Close()
	} else {
		dst.Abort()
	}
	if err != nil {
		logger.Error("conversion failed", "from", string(from), "rows", n, "error", err)
		if !body.started {
			writeError(r.Context(), w, statusFor(err), err.Error())
			return
		}
		// Part of the body is already on the wire. Aborting the connection
		// keeps the client from taking it for a whole document.
		panic(http.ErrAbortHandler)
	}
	w.Header().Set(rowsTrailer, strconv.Itoa(n))
	logger.Info("conversion finished", "from", string(from), "rows", n)
}

// bodyWriter records whether any part of the response body was written.
type bodyWriter struct {
	w       io.Writer
	started bool
}

func (b *bodyWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		b.started = true
	}
	return b.w.Write(p)
}

// spoolName is the file name an upload is spooled under. Keeping the
// upload name lets the source sheet carry it.
func spoolName(name string) string {
	if name == "" {
		return "upload"
	}
	return name
}

// spoolUpload copies the upload into a fresh temporary directory and
// returns the directory and the upload name.
func (s *Server) spoolUpload(r *http.Request) (string, string, error) {
	body := io.Reader(r.Body)
	name := r.URL.Query().Get("name")

	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		mr, err := r.MultipartReader()
		if err != nil {
			return "", "", err
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return "", "", errors.New("multipart form has no \"file\" part")
			}
			if err != nil {
				return "", "", err
			}
			if part.FormName() == "file" {
				body = part
				if fn := part.FileName(); fn != "" {
					name = fn
				}
				break
			}
		}
	}
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		name = ""
	}

	dir, err := os.MkdirTemp(s.cfg.Codec.TempDir, "tabstream-upload-*")
	if err != nil {
		return "", name, err
	}
	f, err := os.Create(filepath.Join(dir, spoolName(name)))
	if err != nil {
		return dir, name, err
	}
	_, err = io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return dir, name, err
}

// statusFor maps a conversion error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tabstream.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, tabstream.ErrCorruptContainer),
		errors.Is(err, tabstream.ErrMalformedRecord),
		errors.Is(err, tabstream.ErrUnresolvedStringIndex):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError logs the failure and writes a JSON error response.
func writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	logging.FromContext(ctx).Warn("request failed", "status", status, "error", message)

	w.Header().Del("Content-Disposition")
	w.Header().Del("Trailer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}
