package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/local/pdfdesk/internal/recompose"
)

var (
	// ErrUnsupportedRef is returned for references the fetcher cannot resolve.
	ErrUnsupportedRef = errors.New("unsupported source reference")
	// ErrTooLarge is returned when a source exceeds the size cap.
	ErrTooLarge = errors.New("source exceeds size limit")
)

// Options configures a Fetcher.
type Options struct {
	MaxBytes  int64
	AllowHTTP bool
	Timeout   time.Duration
	S3        S3Options
	// S3Client overrides the lazily built client.
	S3Client   S3API
	HTTPClient *http.Client
}

// Fetcher resolves data:, s3:// and http(s):// references into sources.
type Fetcher struct {
	maxBytes  int64
	allowHTTP bool
	timeout   time.Duration
	http      *http.Client

	s3Opts  S3Options
	s3Once  sync.Once
	s3      S3API
	s3Error error
}

func NewFetcher(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	f := &Fetcher{
		maxBytes:  opts.MaxBytes,
		allowHTTP: opts.AllowHTTP,
		timeout:   opts.Timeout,
		http:      client,
		s3Opts:    opts.S3,
	}
	if opts.S3Client != nil {
		f.s3 = opts.S3Client
		f.s3Once.Do(func() {})
	}
	return f
}

func (f *Fetcher) s3Client(ctx context.Context) (S3API, error) {
	f.s3Once.Do(func() {
		f.s3, f.s3Error = NewS3Client(ctx, f.s3Opts)
	})
	return f.s3, f.s3Error
}

// Fetch downloads ref. name overrides the name derived from the reference.
func (f *Fetcher) Fetch(ctx context.Context, name, ref string) (recompose.Source, error) {
	ref = strings.TrimSpace(ref)
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(ref, "data:"):
		_, data, err = recompose.DecodeDataURI(ref)
		if err == nil && f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
			err = fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
		}
	case strings.HasPrefix(ref, "s3://"):
		data, err = f.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if !f.allowHTTP {
			return recompose.Source{}, fmt.Errorf("%w: http fetching is disabled", ErrUnsupportedRef)
		}
		data, err = f.fetchHTTP(ctx, ref)
	default:
		return recompose.Source{}, fmt.Errorf("%w: %.32q", ErrUnsupportedRef, ref)
	}
	if err != nil {
		return recompose.Source{}, err
	}
	if name == "" {
		name = nameFromRef(ref)
	}
	return recompose.Source{Name: name, Data: data}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedRef, err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download source: HTTP %d", resp.StatusCode)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	return data, nil
}

func nameFromRef(ref string) string {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return "document.pdf"
	case strings.HasPrefix(ref, "s3://"):
		_, key, _ := strings.Cut(strings.TrimPrefix(ref, "s3://"), "/")
		if base := path.Base(key); base != "." && base != "/" {
			return base
		}
	default:
		if u, err := url.Parse(ref); err == nil {
			if base := path.Base(u.Path); base != "." && base != "/" {
				return base
			}
		}
	}
	return "document.pdf"
}
