package upload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"dropzone/internal/logging"
	"dropzone/internal/metrics"
	"dropzone/internal/models"
	"dropzone/internal/storage"
)

// FilenameHeader carries the target name of a raw-body upload.
const FilenameHeader = "X-Filename"

const sniffLen = 3072

// Report lists what a request left on disk. Files that committed before
// a sibling part failed are kept and listed here.
type Report struct {
	Files  []models.StoredFile `json:"files"`
	Failed []models.FailedFile `json:"failed,omitempty"`
}

type Options struct {
	MaxSize int64
	Metrics *metrics.Metrics
	Logger  logging.Logger
	// Now names raw uploads that arrive without a filename.
	Now func() time.Time
}

// Decoder turns upload requests into stored files.
type Decoder struct {
	provider storage.StorageProvider
	resolver *Resolver
	opts     Options
	logger   logging.Logger
}

func NewDecoder(provider storage.StorageProvider, opts Options) *Decoder {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Decoder{
		provider: provider,
		resolver: NewResolver(provider.Exists),
		opts:     opts,
		logger:   opts.Logger,
	}
}

// Decode stores every file carried by r. multipart/* bodies yield one
// file per part with a filename, in order; any other body is one file.
// On error the returned report still lists the files already stored.
func (d *Decoder) Decode(ctx context.Context, r *http.Request) (*Report, error) {
	report := &Report{Files: []models.StoredFile{}}

	if r.ContentLength > d.opts.MaxSize {
		return report, d.reject(ctx, fmt.Errorf("%w: request body is %s, limit is %s",
			ErrSizeLimitExceeded, humanize.IBytes(uint64(r.ContentLength)), humanize.IBytes(uint64(d.opts.MaxSize))))
	}

	contentType := r.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	isMultipart := strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "multipart/")
	if isMultipart {
		if err != nil {
			return report, d.reject(ctx, fmt.Errorf("%w: %w", ErrMalformedRequest, err))
		}
		boundary := params["boundary"]
		if boundary == "" {
			return report, d.reject(ctx, fmt.Errorf("%w: %w", ErrMalformedRequest, http.ErrMissingBoundary))
		}
		d.logger.Debug(ctx, "decoding multipart upload", "type", mediaType)
		return d.decodeMultipart(ctx, multipart.NewReader(r.Body, boundary), report)
	}

	return d.decodeRaw(ctx, r, report)
}

func (d *Decoder) decodeMultipart(ctx context.Context, mr *multipart.Reader, report *Report) (*Report, error) {
	for index := 0; ; index++ {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			err = classifyFramingError(ctx, err)
			if len(report.Files) == 0 {
				return report, d.reject(ctx, err)
			}
			return report, err
		}

		filename := part.FileName()
		if filename == "" {
			_ = part.Close()
			continue
		}

		stored, err := d.store(ctx, part, filename, part.Header.Get("Content-Type"))
		_ = part.Close()
		if err != nil {
			report.Failed = append(report.Failed, models.FailedFile{Name: filename, Error: err.Error()})
			d.logger.Warn(ctx, "multipart upload failed", "part", index, "stored", len(report.Files), "error", err)
			return report, err
		}
		report.Files = append(report.Files, stored)
	}

	if len(report.Files) == 0 {
		return report, d.reject(ctx, fmt.Errorf("%w: no file parts in request", ErrEmptyUpload))
	}
	return report, nil
}

func (d *Decoder) decodeRaw(ctx context.Context, r *http.Request, report *Report) (*Report, error) {
	if r.ContentLength == 0 || r.Body == nil || r.Body == http.NoBody {
		return report, d.reject(ctx, fmt.Errorf("%w: request body is empty", ErrEmptyUpload))
	}

	requested := filenameFromHeader(r.Header.Get(FilenameHeader))
	if requested == "" {
		now := d.opts.Now()
		requested = fmt.Sprintf("upload-%s-%03d", now.Format("20060102-150405"), now.Nanosecond()/int(time.Millisecond))
	}

	stored, err := d.store(ctx, r.Body, requested, r.Header.Get("Content-Type"))
	if err != nil {
		report.Failed = append(report.Failed, models.FailedFile{Name: requested, Error: err.Error()})
		return report, err
	}
	report.Files = append(report.Files, stored)
	return report, nil
}

// store runs one stream through a fresh Sink. When the name has no
// extension and the declared type says nothing useful, the leading bytes
// are sniffed to pick one.
func (d *Decoder) store(ctx context.Context, src io.Reader, requested, hint string) (models.StoredFile, error) {
	if _, ext := splitExt(Sanitize(requested, "")); ext == "" && isGenericType(hint) {
		br := bufio.NewReaderSize(src, sniffLen)
		head, _ := br.Peek(sniffLen)
		if len(head) > 0 {
			hint = mimetype.Detect(head).String()
		}
		src = br
	}

	sink, err := OpenSink(ctx, d.provider, d.resolver, requested, hint, SinkOptions{
		Limit:   d.opts.MaxSize,
		Metrics: d.opts.Metrics,
		Logger:  d.logger,
	})
	if err != nil {
		return models.StoredFile{}, err
	}
	defer sink.Abort()

	if _, err := sink.ReadFrom(src); err != nil {
		return models.StoredFile{}, err
	}
	return sink.Close()
}

func (d *Decoder) reject(ctx context.Context, err error) error {
	d.opts.Metrics.ObserveRejected(Outcome(err))
	d.logger.Warn(ctx, "upload rejected", "error", err)
	return err
}

func classifyFramingError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrStreamAborted, ctxErr)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrStreamAborted, err)
	}
	return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
}

func isGenericType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err != nil || mediaType == "application/octet-stream"
}

func filenameFromHeader(v string) string {
	v = strings.TrimSpace(v)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}
