package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/saintfish/chardet"
	xcharset "golang.org/x/net/html/charset"

	"github.com/vitrinehq/vitrine/internal/domain/manifest"
	"github.com/vitrinehq/vitrine/internal/infrastructure/resilience"
	"github.com/vitrinehq/vitrine/internal/shared/utils"
)

var (
	// ErrDigestMismatch indicates the fetched payload does not match the
	// manifest's pin. The payload is discarded.
	ErrDigestMismatch = errors.New("bundle digest mismatch")

	// ErrTooLarge indicates a payload over the configured byte cap
	ErrTooLarge = errors.New("bundle too large")
)

// Config tunes the fetcher
type Config struct {
	// CacheDir roots the digest-addressed disk cache
	CacheDir string

	// MaxFetchBytes caps the payload as transferred; 4MB when zero
	MaxFetchBytes int64

	// MaxCodeBytes caps the payload after decompression; the script size
	// limit when zero
	MaxCodeBytes int64

	// Timeout bounds one HTTP attempt; 15s when zero
	Timeout time.Duration

	// RetryMax is the retry budget per download; 3 when zero
	RetryMax int
}

// Info describes a fetched bundle
type Info struct {
	Digest      utils.Digest `json:"digest"`
	Size        int          `json:"size"`
	ContentType string       `json:"content_type"`
	Charset     string       `json:"charset"`
	FromCache   bool         `json:"from_cache"`
}

// Fetcher downloads, verifies, and caches fragment bundles
type Fetcher struct {
	client   *retryablehttp.Client
	breaker  *resilience.Breaker
	cache    *Cache
	maxFetch int64
	maxCode  int64
}

// NewFetcher builds a fetcher with a disk cache at cfg.CacheDir
func NewFetcher(cfg Config) (*Fetcher, error) {
	cache, err := NewCache(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	if cfg.MaxFetchBytes <= 0 {
		cfg.MaxFetchBytes = 4 * 1024 * 1024
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = utils.MaxScriptSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil

	return &Fetcher{
		client:   client,
		breaker:  resilience.New("bundle-fetch", resilience.Settings{}),
		cache:    cache,
		maxFetch: cfg.MaxFetchBytes,
		maxCode:  cfg.MaxCodeBytes,
	}, nil
}

// Fetch resolves a bundle reference to UTF-8 fragment code. The digest is
// verified before decompression, so nothing unverified is ever parsed.
func (f *Fetcher) Fetch(ctx context.Context, ref manifest.BundleRef) (string, *Info, error) {
	digest, err := utils.ParseDigest(ref.Digest)
	if err != nil {
		return "", nil, err
	}

	if raw, ok := f.cache.Get(digest); ok {
		code, info, err := f.decode(raw)
		if err != nil {
			return "", nil, err
		}
		info.Digest = digest
		info.FromCache = true
		return code, info, nil
	}

	raw, err := f.download(ctx, ref.URL)
	if err != nil {
		return "", nil, err
	}

	if !digest.Verify(raw) {
		return "", nil, fmt.Errorf("%w: %s", ErrDigestMismatch, ref.URL)
	}

	if err := f.cache.Put(digest, raw); err != nil {
		return "", nil, err
	}

	code, info, err := f.decode(raw)
	if err != nil {
		return "", nil, err
	}
	info.Digest = digest
	return code, info, nil
}

// download transfers the payload with retries, behind the breaker so a
// repeatedly failing origin stops consuming attempts
func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	result, err := f.breaker.Execute(func() (interface{}, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("bundle request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("bundle fetch: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("bundle fetch: unexpected status %s", resp.Status)
		}

		data, err := readCapped(resp.Body, f.maxFetch)
		if err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// decode decompresses a verified payload and normalizes it to UTF-8
func (f *Fetcher) decode(raw []byte) (string, *Info, error) {
	kind := mimetype.Detect(raw)

	data := raw
	switch {
	case kind.Is("application/gzip"):
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", nil, fmt.Errorf("bundle gzip: %w", err)
		}
		defer zr.Close()
		data, err = readCapped(zr, f.maxCode)
		if err != nil {
			return "", nil, err
		}
	case kind.Is("application/zstd"):
		zr, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", nil, fmt.Errorf("bundle zstd: %w", err)
		}
		defer zr.Close()
		data, err = readCapped(zr, f.maxCode)
		if err != nil {
			return "", nil, err
		}
	default:
		if int64(len(data)) > f.maxCode {
			return "", nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
		}
	}

	code, cs, err := toUTF8(data)
	if err != nil {
		return "", nil, err
	}

	return code, &Info{
		Size:        len(data),
		ContentType: mimetype.Detect(data).String(),
		Charset:     cs,
	}, nil
}

// toUTF8 detects the payload's charset and converts when it is not already
// UTF-8 compatible
func toUTF8(data []byte) (string, string, error) {
	res, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || res == nil {
		if utf8.Valid(data) {
			return string(data), "UTF-8", nil
		}
		return "", "", fmt.Errorf("bundle charset undetectable")
	}

	label := strings.ToUpper(res.Charset)
	if label == "UTF-8" || label == "US-ASCII" || label == "ASCII" {
		if !utf8.Valid(data) {
			return "", "", fmt.Errorf("bundle is not valid %s", res.Charset)
		}
		return string(data), res.Charset, nil
	}

	r, err := xcharset.NewReaderLabel(res.Charset, bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("bundle charset %s: %w", res.Charset, err)
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		return "", "", fmt.Errorf("bundle charset %s: %w", res.Charset, err)
	}
	return string(converted), res.Charset, nil
}

// readCapped reads at most max bytes, failing when the source exceeds it
func readCapped(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("bundle read: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, max)
	}
	return data, nil
}
