package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/indigo-web/formstream/http/status"
	"github.com/indigo-web/formstream/internal/imagesize"
	"github.com/indigo-web/formstream/internal/multipart"
	"github.com/indigo-web/formstream/internal/spool"
	"github.com/indigo-web/formstream/kv"
)

// Parse consumes a multipart/form-data body, keeping fields in memory and spooling
// files into the temporary directory. It returns once the body is over and every
// file is written. On error no files are left behind.
//
// Crossing the size ceiling is not an error: the body is drained, files are removed
// and the result is marked as Exceeded.
func (s *Session) Parse(ctx context.Context, body io.Reader, contentType string) (*Result, error) {
	c := s.newCollector(false, nil)
	if err := s.consume(ctx, body, contentType, c); err != nil {
		c.abort()
		s.Logger.Debug("multipart body rejected", slog.Any("error", err))
		return nil, err
	}

	result := c.finish()
	s.Logger.Debug("multipart body parsed",
		slog.Int("fields", result.Fields.Len()),
		slog.Int("files", len(result.Files)),
		slog.Bool("exceeded", result.Exceeded),
		slog.Bool("unsafe", result.UnsafeContent),
	)

	return result, nil
}

// spooled is a file part whose writer might not be done yet.
type spooled struct {
	artifact *Artifact
	file     *spool.File
}

type collector struct {
	s      *Session
	mixed  bool
	onFile func(*Artifact) error
	group  *spool.Group
	part   part
	fields *kv.Storage
	files  []spooled
	// paths lists every file created by the session and not handed out yet
	paths    []string
	total    int64
	exceeded bool
	unsafe   bool
}

func (s *Session) newCollector(mixed bool, onFile func(*Artifact) error) *collector {
	return &collector{
		s:      s,
		mixed:  mixed,
		onFile: onFile,
		group:  spool.NewGroup(s.multipart.WriteQueue, s.multipart.WriteBufferSize),
		fields: kv.New(),
	}
}

// consume drives the reading, the parser and the collector until the body is over.
func (s *Session) consume(ctx context.Context, body io.Reader, contentType string, c *collector) error {
	boundary, err := Boundary(contentType)
	if err != nil {
		return err
	}

	parser, err := multipart.New(boundary)
	if err != nil {
		return err
	}

	buf := make([]byte, s.readBufferSize())

	for {
		if err = ctx.Err(); err != nil {
			return err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			for ev, err := range parser.Parse(buf[:n]) {
				if err != nil {
					return err
				}

				if err = c.handle(ev); err != nil {
					return err
				}
			}
		}

		if readErr == io.EOF {
			break
		}

		if readErr != nil {
			return fmt.Errorf("read body: %w", readErr)
		}
	}

	for ev, err := range parser.Finish() {
		if err != nil {
			return err
		}

		if err = c.handle(ev); err != nil {
			return err
		}
	}

	return nil
}

func (c *collector) handle(ev multipart.Event) error {
	p := &c.part

	switch ev.Kind {
	case multipart.PartBegin:
		p.reset()
	case multipart.HeaderField:
		return p.appendHeader(&p.headerField, ev.Data, c.s.multipart.MaxHeaderSize)
	case multipart.HeaderValue:
		return p.appendHeader(&p.headerValue, ev.Data, c.s.multipart.MaxHeaderSize)
	case multipart.HeaderEnd:
		return p.header()
	case multipart.HeadersEnd:
		return c.beginBody()
	case multipart.PartData:
		return c.write(ev.Data)
	case multipart.PartEnd:
		return c.endPart()
	}

	return nil
}

func (c *collector) beginBody() error {
	p := &c.part
	if len(p.name) == 0 {
		return fmt.Errorf("%w: part has no name", status.ErrMalformedMultipart)
	}

	if len(p.contentType) == 0 {
		p.contentType = c.s.defaultContentType
	}

	switch {
	case c.exceeded:
		p.phase = phaseSkip
	case p.isFile:
		path := c.s.tempPath()
		p.file = c.group.Open(path)
		c.paths = append(c.paths, path)
		if c.s.multipart.SniffSize > 0 {
			p.measure, _ = imagesize.For(p.contentType)
		}

		p.phase = phaseBody
	case c.mixed:
		p.phase = phaseSkip
	default:
		p.phase = phaseBody
	}

	return nil
}

func (c *collector) write(data []byte) error {
	p := &c.part
	if p.phase != phaseBody {
		return nil
	}

	if !c.mixed {
		c.total += int64(len(data))
		if c.total > c.s.MaxSize {
			c.exceed()
			return nil
		}
	}

	if p.file == nil {
		p.value = append(p.value, data...)
		return nil
	}

	if p.measure != nil {
		p.sniff(data, c.s.multipart.SniffSize)
	}

	p.size += int64(len(data))
	_, err := p.file.Write(data)
	return err
}

// exceed stops any further accumulation. Whatever was already written is going to
// be removed once every writer is done.
func (c *collector) exceed() {
	c.exceeded = true
	c.part.phase = phaseSkip

	if c.part.file != nil {
		c.part.file.Abort()
		c.part.file = nil
	}

	c.s.Logger.Info("upload exceeds the size limit", slog.Int64("limit", c.s.MaxSize))
}

func (c *collector) endPart() error {
	p := &c.part
	if p.phase != phaseBody {
		// either skipped, or the stream ended right after the boundary
		return nil
	}

	p.phase = phaseSkip

	if p.file == nil {
		value := string(p.value)
		if !c.unsafe && c.s.SafetyCheck != nil && c.s.SafetyCheck(value) {
			c.unsafe = true
			c.s.Logger.Warn("field with unsafe content", slog.String("field", p.name))
		}

		c.fields.Add(p.name, value)
		return nil
	}

	file := p.file
	p.file = nil
	_ = file.Close()

	artifact := &Artifact{
		FieldName:   p.name,
		Filename:    p.filename,
		Path:        file.Path(),
		Size:        p.size,
		ContentType: p.contentType,
	}

	if p.measure != nil {
		if size, ok := p.measure(p.head); ok {
			artifact.Width, artifact.Height = size.Width, size.Height
		}
	}

	if c.mixed {
		return c.deliver(artifact, file)
	}

	c.files = append(c.files, spooled{artifact: artifact, file: file})
	return nil
}

// finish waits for every writer and assembles the result.
func (c *collector) finish() *Result {
	c.group.Wait()

	result := &Result{
		Fields:        c.fields,
		Files:         make([]*Artifact, 0, len(c.files)),
		Exceeded:      c.exceeded,
		UnsafeContent: c.unsafe,
	}

	if c.exceeded {
		c.cleanup()
		return result
	}

	for _, f := range c.files {
		if _, err := f.file.Wait(); err != nil {
			c.dropped(f.artifact, err)
			continue
		}

		result.Files = append(result.Files, f.artifact)
	}

	return result
}

func (c *collector) dropped(artifact *Artifact, err error) {
	c.s.Logger.Warn("file part dropped",
		slog.String("field", artifact.FieldName),
		slog.String("filename", artifact.Filename),
		slog.Any("error", err),
	)
}

// abort stops every writer and removes every file the session still owns.
func (c *collector) abort() {
	if c.part.file != nil {
		c.part.file.Abort()
		c.part.file = nil
	}

	for _, f := range c.files {
		f.file.Abort()
	}

	c.group.Wait()
	c.cleanup()
}

func (c *collector) cleanup() {
	for _, path := range c.paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.s.Logger.Warn("cannot remove temporary file", slog.String("path", path), slog.Any("error", err))
		}
	}

	c.paths = nil
}

// disown hands the file over to the caller, so it's never removed by the session.
func (c *collector) disown(path string) {
	if i := slices.Index(c.paths, path); i != -1 {
		c.paths = slices.Delete(c.paths, i, i+1)
	}
}
