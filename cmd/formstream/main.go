// Command formstream parses a multipart body from a file or stdin and prints what
// it found as JSON.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	json "github.com/json-iterator/go"
	"github.com/spf13/pflag"

	"github.com/indigo-web/formstream/config"
	"github.com/indigo-web/formstream/http/codec"
	"github.com/indigo-web/formstream/http/mime"
	"github.com/indigo-web/formstream/upload"
)

type options struct {
	contentType string
	boundary    string
	chunked     bool
	encoding    string
	mixed       bool
	keep        bool
	verbose     bool
	tempDir     string
	maxSize     int64
	input       string
}

func parseFlags(args []string) (*options, error) {
	var (
		opts  options
		flags = pflag.NewFlagSet("formstream", pflag.ContinueOnError)
	)

	flags.StringVarP(&opts.contentType, "content-type", "t", "", "Content-Type of the body, including the boundary")
	flags.StringVarP(&opts.boundary, "boundary", "b", "", "boundary of a multipart/form-data body")
	flags.BoolVar(&opts.chunked, "chunked", false, "the body is encoded with chunked transfer encoding")
	flags.StringVarP(&opts.encoding, "encoding", "e", "", "content coding of the body, e.g. gzip")
	flags.BoolVar(&opts.mixed, "mixed", false, "print files as soon as they are written, skipping fields")
	flags.BoolVar(&opts.keep, "keep", false, "keep spooled files instead of removing them on exit")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	flags.StringVar(&opts.tempDir, "temp-dir", os.TempDir(), "directory to spool files into")
	flags.Int64Var(&opts.maxSize, "max-size", config.Default().Upload.MaxSize, "ceiling of part data bytes")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	switch {
	case len(opts.contentType) > 0:
	case len(opts.boundary) > 0:
		opts.contentType = mime.Multipart + "; boundary=" + opts.boundary
	default:
		return nil, errors.New("either --content-type or --boundary is required")
	}

	switch flags.NArg() {
	case 0:
		opts.input = "-"
	case 1:
		opts.input = flags.Arg(0)
	default:
		return nil, errors.New("at most one input file is accepted")
	}

	return &opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	} else if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "formstream:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err = run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "formstream:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, stdin io.Reader, stdout io.Writer) error {
	body := stdin
	if opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		body = f
	}

	if opts.chunked {
		body = upload.NewChunkedReader(body, true)
	}

	decoded, err := codec.Default().Decode(opts.encoding, body)
	if err != nil {
		return err
	}
	defer func() { _ = decoded.Close() }()

	body = decoded

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	cfg := config.Default()
	session := upload.NewSession(cfg, "local",
		upload.WithLogger(logger),
		upload.WithTempDir(opts.tempDir),
		upload.WithMaxSize(opts.maxSize),
	)

	encoder := json.NewEncoder(stdout)

	if opts.mixed {
		return session.ParseMixed(ctx, body, opts.contentType, func(artifact *upload.Artifact) error {
			if artifact == nil {
				return nil
			}

			if !opts.keep {
				defer func() { _ = artifact.Remove() }()
			}

			return encoder.Encode(artifact)
		})
	}

	result, err := session.Parse(ctx, body, opts.contentType)
	if err != nil {
		return err
	}

	if !opts.keep {
		defer func() {
			if err := result.Remove(); err != nil {
				logger.Warn("failed to remove files", slog.Any("error", err))
			}
		}()
	}

	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
