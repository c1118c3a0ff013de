// Package server exposes the ingestion pipeline over HTTP.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"

	"github.com/indigo-web/formstream/config"
	"github.com/indigo-web/formstream/http/codec"
	"github.com/indigo-web/formstream/http/mime"
	"github.com/indigo-web/formstream/http/status"
	"github.com/indigo-web/formstream/kv"
	"github.com/indigo-web/formstream/store"
	"github.com/indigo-web/formstream/upload"
)

type Server struct {
	cfg      *config.Config
	storage  store.Storage
	decoders codec.Decoders
	logger   *slog.Logger
}

// New returns the upload service handler. Storage may be nil, in which case files are
// left in the temporary directory and reported by their paths.
func New(cfg *config.Config, storage store.Storage, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		storage:  storage,
		decoders: codec.Default(),
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LogRequests(logger))

	r.Get("/healthz", s.health)
	r.Post("/upload", s.upload)
	r.Post("/upload/files", s.uploadFiles)

	if storage != nil {
		r.Delete("/objects/*", s.deleteObject)
	}

	if local, ok := storage.(*store.Local); ok && strings.HasPrefix(cfg.Store.Local.BaseURL, "/") {
		prefix := path.Clean(cfg.Store.Local.BaseURL) + "/"
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(local.Dir()))))
	}

	return r
}

type fileResponse struct {
	Field       string `json:"field"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	// Path is set only when no storage is configured.
	Path   string        `json:"path,omitempty"`
	Object *store.Object `json:"object,omitempty"`
}

func newFileResponse(artifact *upload.Artifact, object *store.Object) fileResponse {
	response := fileResponse{
		Field:       artifact.FieldName,
		Filename:    artifact.Filename,
		Size:        artifact.Size,
		ContentType: artifact.ContentType,
		Width:       artifact.Width,
		Height:      artifact.Height,
		Object:      object,
	}

	if object == nil {
		response.Path = artifact.Path
	}

	return response
}

type uploadResponse struct {
	Session string         `json:"session"`
	Fields  *kv.Storage    `json:"fields"`
	Files   []fileResponse `json:"files"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, status.OK, map[string]string{"status": "ok"})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)

	body, err := s.body(w, r)
	if err != nil {
		s.fail(w, session.Logger, err)
		return
	}
	defer func() { _ = body.Close() }()

	result, err := session.Parse(r.Context(), body, r.Header.Get("Content-Type"))
	if err != nil {
		s.fail(w, session.Logger, err)
		return
	}

	if result.Exceeded {
		s.fail(w, session.Logger, status.ErrBodyTooLarge)
		return
	}

	if result.UnsafeContent {
		if err = result.Remove(); err != nil {
			session.Logger.Warn("failed to remove files", slog.Any("error", err))
		}

		s.fail(w, session.Logger, status.ErrUnsafeContent)
		return
	}

	files, err := s.persist(r, session, result.Files)
	if err != nil {
		s.fail(w, session.Logger, err)
		return
	}

	s.respond(w, status.OK, uploadResponse{
		Session: session.ID.String(),
		Fields:  result.Fields,
		Files:   files,
	})
}

// persist saves every file to the storage. On failure, objects saved so far are
// deleted and the remaining temporary files are removed.
func (s *Server) persist(r *http.Request, session *upload.Session, artifacts []*upload.Artifact) ([]fileResponse, error) {
	files := make([]fileResponse, 0, len(artifacts))
	if s.storage == nil {
		for _, artifact := range artifacts {
			files = append(files, newFileResponse(artifact, nil))
		}

		return files, nil
	}

	for i, artifact := range artifacts {
		object, err := s.storage.Save(r.Context(), artifact, objectKey(artifact))
		if err != nil {
			for _, rest := range artifacts[i:] {
				_ = rest.Remove()
			}

			for _, file := range files {
				if derr := s.storage.Delete(r.Context(), file.Object.Key); derr != nil {
					session.Logger.Warn("failed to roll back a saved object",
						slog.String("key", file.Object.Key), slog.Any("error", derr),
					)
				}
			}

			return nil, storageError(err)
		}

		files = append(files, newFileResponse(artifact, object))
	}

	return files, nil
}

// uploadFiles streams a JSON line per file as soon as the file is complete. Once the
// first line is out, errors can only be reported by a trailing error line.
func (s *Server) uploadFiles(w http.ResponseWriter, r *http.Request) {
	var (
		session    = s.session(r)
		controller = http.NewResponseController(w)
		stream     = json.NewEncoder(w)
		started    bool
	)

	body, err := s.body(w, r)
	if err != nil {
		s.fail(w, session.Logger, err)
		return
	}
	defer func() { _ = body.Close() }()

	err = session.ParseMixed(r.Context(), body, r.Header.Get("Content-Type"), func(artifact *upload.Artifact) error {
		if artifact == nil {
			return nil
		}

		var object *store.Object
		if s.storage != nil {
			var err error
			if object, err = s.storage.Save(r.Context(), artifact, objectKey(artifact)); err != nil {
				_ = artifact.Remove()
				return storageError(err)
			}
		}

		if !started {
			w.Header().Set("Content-Type", mime.NDJSON)
			w.WriteHeader(int(status.OK))
			started = true
		}

		if err := stream.Encode(newFileResponse(artifact, object)); err != nil {
			return err
		}

		return controller.Flush()
	})

	switch {
	case err == nil && !started:
		w.Header().Set("Content-Type", mime.NDJSON)
		w.WriteHeader(int(status.OK))
	case err != nil && !started:
		s.fail(w, session.Logger, err)
	case err != nil:
		session.Logger.Warn("upload stream interrupted", slog.Any("error", err))
		_ = stream.Encode(errorResponse{Error: publicMessage(err)})
	}
}

func (s *Server) deleteObject(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if err := s.storage.Delete(r.Context(), key); err != nil {
		s.fail(w, s.logger, storageError(err))
		return
	}

	w.WriteHeader(int(status.NoContent))
}

// body undoes the content codings of the request body. Unsupported codings are
// answered with the list of acceptable ones (RFC 7694).
func (s *Server) body(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	body, err := s.decoders.Decode(r.Header.Get("Content-Encoding"), r.Body)
	if errors.Is(err, status.ErrUnsupportedEncoding) {
		w.Header().Set("Accept-Encoding", strings.Join(s.decoders.Acceptable(), ", "))
	}

	return body, err
}

func (s *Server) session(r *http.Request) *upload.Session {
	return upload.NewSession(s.cfg, r.RemoteAddr, upload.WithLogger(s.logger))
}

func (s *Server) fail(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := status.CodeOf(err)
	if code >= status.InternalServerError {
		logger.Error("request failed", slog.Any("error", err))
	} else {
		logger.Debug("request rejected", slog.Any("error", err))
	}

	s.respond(w, code, errorResponse{Error: publicMessage(err)})
}

func (s *Server) respond(w http.ResponseWriter, code status.Code, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("failed to encode response", slog.Any("error", err))
		code = status.InternalServerError
		data = []byte(`{"error":"internal server error"}`)
	}

	w.Header().Set("Content-Type", mime.JSON)
	w.WriteHeader(int(code))
	_, _ = w.Write(append(data, '\n'))
}

// publicMessage hides the details of internal errors from the client.
func publicMessage(err error) string {
	var httpErr status.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}

	return status.ErrInternalServerError.Error()
}

func storageError(err error) error {
	var code error

	switch {
	case errors.Is(err, store.ErrInvalidKey):
		code = status.ErrBadRequest
	case errors.Is(err, store.ErrNotFound):
		code = status.ErrNotFound
	case errors.Is(err, store.ErrUnavailable):
		code = status.ErrServiceUnavailable
	case errors.Is(err, store.ErrBucketNotFound),
		errors.Is(err, store.ErrAccessDenied),
		errors.Is(err, store.ErrOperationFailed):
		code = status.ErrBadGateway
	default:
		return err
	}

	return errors.Join(code, err)
}

func objectKey(artifact *upload.Artifact) string {
	return uuid.NewString() + "/" + artifact.SafeFilename()
}
