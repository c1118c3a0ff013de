package upload

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/indigo-web/formstream/config"
	"github.com/indigo-web/formstream/internal/strutil"
	"github.com/indigo-web/formstream/kv"
)

const (
	tempSuffix = ".upload"
	// tempRandomRange bounds the random component of temporary file names.
	tempRandomRange = 100000
	// defaultReadBufferSize is used when the multipart settings carry none.
	defaultReadBufferSize = 16 * 1024
)

// Session is the context of a single request body ingestion. It carries everything
// the ingestion needs to know about the request and the environment, so nothing
// is shared between concurrent requests except the temporary directory.
type Session struct {
	ID       uuid.UUID
	ClientIP string
	// TempDir is where file parts are spooled to.
	TempDir string
	// MaxSize is the ceiling of part data bytes in field+file mode. It isn't applied
	// to mixed mode.
	MaxSize int64
	// SafetyCheck reports field values with unsafe content. May be nil.
	SafetyCheck func(value string) bool
	Logger      *slog.Logger

	defaultContentType string
	multipart          config.Multipart
	now                func() time.Time
	random             func(n int) int
}

type Option func(*Session)

// WithLogger replaces slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.Logger = logger
	}
}

// WithSafetyCheck replaces LooksLikeScript. Passing nil disables the check.
func WithSafetyCheck(check func(string) bool) Option {
	return func(s *Session) {
		s.SafetyCheck = check
	}
}

func WithMaxSize(size int64) Option {
	return func(s *Session) {
		s.MaxSize = size
	}
}

func WithTempDir(dir string) Option {
	return func(s *Session) {
		s.TempDir = dir
	}
}

// NewSession returns a session for a single request coming from clientIP.
func NewSession(cfg *config.Config, clientIP string, opts ...Option) *Session {
	s := &Session{
		ID:                 uuid.New(),
		ClientIP:           clientIP,
		TempDir:            cfg.Upload.TempDir,
		MaxSize:            cfg.Upload.MaxSize,
		SafetyCheck:        LooksLikeScript,
		Logger:             slog.Default(),
		defaultContentType: cfg.Upload.DefaultContentType,
		multipart:          cfg.Multipart,
		now:                time.Now,
		random:             rand.IntN,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.Logger = s.Logger.With(
		slog.String("session", s.ID.String()),
		slog.String("client", clientIP),
	)

	return s
}

// tempPath generates a fresh name for a spooled file, in form of
// {client address}-{unix millis}-{random}.upload
//
// Only an existing name is retried. Any other Lstat failure returns the path
// as is, so the spool reports it when opening the file.
func (s *Session) tempPath() string {
	prefix := strutil.StripAddress(s.ClientIP)

	for {
		name := fmt.Sprintf("%s-%d-%d%s", prefix, s.now().UnixMilli(), s.random(tempRandomRange), tempSuffix)
		path := filepath.Join(s.TempDir, name)
		if _, err := os.Lstat(path); err != nil {
			return path
		}
	}
}

func (s *Session) readBufferSize() int {
	if s.multipart.ReadBufferSize <= 0 {
		return defaultReadBufferSize
	}

	return s.multipart.ReadBufferSize
}

// Result is the outcome of a field+file mode ingestion.
type Result struct {
	// Fields maps field names to their values. Repeated names form a list.
	Fields *kv.Storage `json:"fields"`
	// Files lists every file part written to disk, in order of appearance.
	Files []*Artifact `json:"files"`
	// Exceeded is set when the body crossed the size ceiling. Files is empty then.
	Exceeded bool `json:"exceeded"`
	// UnsafeContent is set once any field fails the safety check.
	UnsafeContent bool `json:"unsafe_content"`
}

// Remove deletes every file of the result, tolerating already missing ones.
func (r *Result) Remove() error {
	var errs []error
	for _, file := range r.Files {
		if err := file.Remove(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
