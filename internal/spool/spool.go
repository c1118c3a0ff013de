// Package spool writes uploaded files to disk in the background. Every file
// is served by its own goroutine, fed through a bounded queue of chunks, so a slow
// disk eventually slows down the reader instead of piling up memory.
package spool

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

var (
	ErrClosed  = errors.New("spool file is already closed")
	ErrAborted = errors.New("spool file was aborted")
)

const (
	DefaultQueue      = 16
	DefaultBufferSize = 32 * 1024
)

// Group tracks files being spooled and serves as a completion barrier for them.
type Group struct {
	wg         sync.WaitGroup
	pending    atomic.Int32
	queue      int
	bufferSize int
}

// NewGroup returns a group whose files buffer up to queue chunks and write them
// through a bufferSize-bytes buffer. Non-positive values fall back to defaults.
func NewGroup(queue, bufferSize int) *Group {
	if queue <= 0 {
		queue = DefaultQueue
	}

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Group{
		queue:      queue,
		bufferSize: bufferSize,
	}
}

// Open creates the file at path and starts its writer. The file is created lazily
// by the writer, so errors surface only from File.Wait.
func (g *Group) Open(path string) *File {
	f := &File{
		path:   path,
		chunks: make(chan []byte, g.queue),
		done:   make(chan struct{}),
	}

	g.pending.Add(1)
	g.wg.Add(1)
	go f.run(g)

	return f
}

// Pending returns the number of files whose writers haven't finished yet.
func (g *Group) Pending() int {
	return int(g.pending.Load())
}

// Wait blocks until every file opened so far is either written or discarded.
func (g *Group) Wait() {
	g.wg.Wait()
}

// File is a single file being spooled. Write, Close and Abort must be called from
// the same goroutine.
type File struct {
	path      string
	chunks    chan []byte
	done      chan struct{}
	closed    bool
	closeOnce sync.Once
	aborted   atomic.Bool

	// written and err are owned by the writer goroutine until done is closed
	written int64
	err     error
}

func (f *File) Path() string {
	return f.path
}

// Write queues a copy of the chunk, blocking while the queue is full.
func (f *File) Write(b []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}

	if len(b) > 0 {
		f.chunks <- bytes.Clone(b)
	}

	return len(b), nil
}

// Close signals that no more data is coming. The file is flushed in the background.
func (f *File) Close() error {
	f.closed = true
	f.closeOnce.Do(func() {
		close(f.chunks)
	})

	return nil
}

// Abort discards whatever was queued and removes the file from the disk.
func (f *File) Abort() {
	f.aborted.Store(true)
	_ = f.Close()
}

// Wait blocks until the writer is done and returns the number of written bytes.
// On any failure the file is already removed.
func (f *File) Wait() (int64, error) {
	<-f.done
	return f.written, f.err
}

func (f *File) run(g *Group) {
	defer func() {
		close(f.done)
		g.pending.Add(-1)
		g.wg.Done()
	}()

	fd, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		f.err = fmt.Errorf("spool %s: %w", f.path, err)
		f.drain()
		return
	}

	w := bufio.NewWriterSize(fd, g.bufferSize)

	for chunk := range f.chunks {
		// the queue is drained in any case, otherwise the producer would block forever
		if f.err != nil || f.aborted.Load() {
			continue
		}

		n, err := w.Write(chunk)
		f.written += int64(n)
		if err != nil {
			f.err = fmt.Errorf("spool %s: %w", f.path, err)
		}
	}

	if f.err == nil && !f.aborted.Load() {
		if err = w.Flush(); err != nil {
			f.err = fmt.Errorf("spool %s: %w", f.path, err)
		}
	}

	if err = fd.Close(); err != nil && f.err == nil {
		f.err = fmt.Errorf("spool %s: %w", f.path, err)
	}

	if f.err == nil && f.aborted.Load() {
		f.err = ErrAborted
	}

	if f.err != nil {
		_ = os.Remove(f.path)
	}
}

func (f *File) drain() {
	for range f.chunks {
	}
}
