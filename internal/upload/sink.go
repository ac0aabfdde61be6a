package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"dropzone/internal/logging"
	"dropzone/internal/metrics"
	"dropzone/internal/models"
	"dropzone/internal/storage"
)

const (
	chunkSize          = 32 << 10
	progressStep       = 64 << 20
	maxPublishAttempts = 16
)

type sinkState int

const (
	sinkOpen sinkState = iota
	sinkCommitted
	sinkAborted
)

// SinkOptions configures a Sink. Limit is required; Metrics and Logger
// may be nil.
type SinkOptions struct {
	Limit   int64
	Metrics *metrics.Metrics
	Logger  logging.Logger
}

// Sink terminates one upload stream. Bytes go to a hidden temp file in
// the storage directory; Close publishes it under a collision-free name
// and any failure removes it, so a stream leaves either a complete file
// or nothing.
//
// A Sink is used from a single goroutine.
type Sink struct {
	ctx       context.Context
	provider  storage.StorageProvider
	resolver  *Resolver
	requested string
	hint      string
	opts      SinkOptions
	logger    logging.Logger

	file     afero.File
	tempName string
	written  int64
	state    sinkState
	err      error
	result   models.StoredFile
}

// OpenSink creates the temp file for one stream. requested and hint are
// resolved to the final name only when the stream commits.
func OpenSink(ctx context.Context, provider storage.StorageProvider, resolver *Resolver, requested, hint string, opts SinkOptions) (*Sink, error) {
	file, tempName, err := provider.CreateTemp()
	if err != nil {
		opts.Metrics.ObserveStream(Outcome(ErrIOFailure))
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Sink{
		ctx:       ctx,
		provider:  provider,
		resolver:  resolver,
		requested: requested,
		hint:      hint,
		opts:      opts,
		logger:    logger.With("upload", Sanitize(requested, hint)),
		file:      file,
		tempName:  tempName,
	}, nil
}

func (s *Sink) Write(p []byte) (int, error) {
	if s.state != sinkOpen {
		return 0, s.closedErr()
	}

	before := s.written
	if before+int64(len(p)) > s.opts.Limit {
		err := fmt.Errorf("%w: limit is %s", ErrSizeLimitExceeded, humanize.IBytes(uint64(s.opts.Limit)))
		s.fail(err)
		return 0, err
	}

	n, err := s.file.Write(p)
	s.written += int64(n)
	after := s.written
	s.opts.Metrics.AddUploadBytes(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		err = fmt.Errorf("%w: write: %w", ErrIOFailure, err)
		s.fail(err)
		return n, err
	}

	if before/progressStep != after/progressStep {
		s.logger.Debug(s.ctx, "upload progress", "written", humanize.IBytes(uint64(after)))
	}
	return n, nil
}

// ReadFrom copies src into the sink chunk by chunk until EOF. A read
// error or a cancelled context aborts the stream.
func (s *Sink) ReadFrom(src io.Reader) (int64, error) {
	if s.state != sinkOpen {
		return 0, s.closedErr()
	}

	buf := make([]byte, chunkSize)
	var total int64
	for {
		if err := s.ctx.Err(); err != nil {
			err = fmt.Errorf("%w: %w", ErrStreamAborted, err)
			s.fail(err)
			return total, err
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := s.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			err := fmt.Errorf("%w: read: %w", ErrStreamAborted, rerr)
			s.fail(err)
			return total, err
		}
	}
}

// Close commits the stream: the temp file is synced, closed and moved to
// the lowest free name. Empty streams are discarded with ErrEmptyUpload.
func (s *Sink) Close() (models.StoredFile, error) {
	switch s.state {
	case sinkCommitted:
		return s.result, nil
	case sinkAborted:
		return models.StoredFile{}, s.err
	}

	if s.written == 0 {
		err := fmt.Errorf("%w: no bytes received", ErrEmptyUpload)
		s.fail(err)
		return models.StoredFile{}, err
	}

	if err := s.file.Sync(); err != nil {
		err = fmt.Errorf("%w: sync: %w", ErrIOFailure, err)
		s.fail(err)
		return models.StoredFile{}, err
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		err = fmt.Errorf("%w: close: %w", ErrIOFailure, err)
		s.fail(err)
		return models.StoredFile{}, err
	}

	name, err := s.publish()
	if err != nil {
		s.fail(err)
		return models.StoredFile{}, err
	}

	s.result = models.StoredFile{Name: name, Size: s.written, ModTime: time.Now()}
	if info, err := s.provider.Stat(name); err == nil {
		s.result.Size = info.Size()
		s.result.ModTime = info.ModTime()
	}
	s.state = sinkCommitted
	s.opts.Metrics.ObserveStream(Outcome(nil))
	s.logger.Info(s.ctx, "upload stored", "name", name, "size", humanize.IBytes(uint64(s.result.Size)))
	return s.result, nil
}

// publish retries with the next free name whenever another stream
// claims the resolved one first.
func (s *Sink) publish() (string, error) {
	for attempt := 0; attempt < maxPublishAttempts; attempt++ {
		name := s.resolver.Resolve(s.requested, s.hint)
		err := s.provider.Publish(s.tempName, name)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
		s.logger.Debug(s.ctx, "name taken, retrying", "name", name)
	}
	return "", fmt.Errorf("%w: no free name after %d attempts", ErrIOFailure, maxPublishAttempts)
}

// Abort discards the stream. It is a no-op once the sink has committed or
// already failed.
func (s *Sink) Abort() {
	s.fail(fmt.Errorf("%w: cancelled", ErrStreamAborted))
}

func (s *Sink) fail(err error) {
	if s.state != sinkOpen {
		return
	}
	s.state = sinkAborted
	s.err = err

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if rmErr := s.provider.Remove(s.tempName); rmErr != nil {
		s.logger.Error(s.ctx, "failed to remove partial upload", "temp", s.tempName, "error", rmErr)
	}
	s.opts.Metrics.ObserveStream(Outcome(err))
	s.logger.Warn(s.ctx, "upload aborted", "written", s.written, "error", err)
}

func (s *Sink) closedErr() error {
	if s.state == sinkAborted {
		return s.err
	}
	return fmt.Errorf("%w: sink already committed", ErrIOFailure)
}
