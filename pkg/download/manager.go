package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/glorpus-work/sitepkg/pkg/errors"
	"github.com/glorpus-work/sitepkg/pkg/fsutil"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultUserAgent is sent when the caller does not configure one.
const DefaultUserAgent = "sitepkg/1.0"

// Config tunes the HTTP side of the download manager.
type Config struct {
	Timeout      time.Duration // bound on a whole fetch, retries included; 0 disables it
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
}

// ManagerImpl downloads over HTTP with retries and optional checksum checks.
type ManagerImpl struct {
	client    *retryablehttp.Client
	timeout   time.Duration
	userAgent string
}

// NewManager creates a download manager from cfg.
func NewManager(cfg Config) *ManagerImpl {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	client.Logger = nil
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &ManagerImpl{
		client:    client,
		timeout:   cfg.Timeout,
		userAgent: userAgent,
	}
}

// Fetch downloads a single item and returns the path to the downloaded file.
// The file appears at its final path only once it is complete.
func (m *ManagerImpl) Fetch(ctx context.Context, item Item, opts Options) (string, error) {
	if opts.Dir == "" || !filepath.IsAbs(opts.Dir) {
		return "", fmt.Errorf("download dir must be absolute: %s: %w", opts.Dir, errors.ErrInvalidPath)
	}
	if item.URL == nil {
		return "", errors.Wrapf(errors.ErrArtifactFetchFailed, "item %s has no URL", item.ID)
	}
	if err := fsutil.EnsureDir(opts.Dir); err != nil {
		return "", errors.Wrap(err, "could not create download dir")
	}

	absPath := filepath.Join(opts.Dir, selectFilename(item))
	if opts.Reuse && reusable(absPath, item.Checksum) {
		return absPath, nil
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	resp, err := m.doRequest(ctx, item)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	tmpPath, err := writeBodyToTemp(resp, absPath, item.Progress)
	if err != nil {
		return "", errors.Mark(errors.ErrArtifactFetchFailed, fmt.Errorf("downloading %s: %w", item.URL, err))
	}
	if item.Checksum != "" {
		ok, err := verifySHA256(tmpPath, item.Checksum)
		if err != nil || !ok {
			_ = os.Remove(tmpPath)
			return "", errors.Wrapf(errors.ErrArtifactFetchFailed, "checksum mismatch for %s", item.URL)
		}
	}
	if err := fsutil.Move(tmpPath, absPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", errors.Mark(errors.ErrArtifactFetchFailed, err)
	}
	return absPath, nil
}

func selectFilename(item Item) string {
	if item.Filename != "" {
		return item.Filename
	}
	if base := path.Base(item.URL.Path); base != "" && base != "/" && base != "." {
		return base
	}
	h := sha256.Sum256([]byte(item.URL.String()))
	return hex.EncodeToString(h[:])
}

func reusable(absPath, checksum string) bool {
	st, err := os.Stat(absPath)
	if err != nil || st.Size() == 0 {
		return false
	}
	if checksum == "" {
		return true
	}
	ok, err := verifySHA256(absPath, checksum)
	return err == nil && ok
}

func (m *ManagerImpl) doRequest(ctx context.Context, item Item) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, item.URL.String(), nil)
	if err != nil {
		return nil, errors.Mark(errors.ErrArtifactFetchFailed, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.ErrArtifactFetchFailed, fmt.Errorf("download %s failed: %w", item.URL, err))
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, errors.Wrapf(errors.ErrArtifactFetchFailed, "unexpected status code: %d for %s", resp.StatusCode, item.URL)
	}
	return resp, nil
}

func writeBodyToTemp(resp *http.Response, absPath string, progress ProgressFunc) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(absPath), "dl-*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "create temp")
	}
	tmpPath := tmp.Name()

	var w io.Writer = tmp
	if progress != nil {
		w = &progressWriter{w: tmp, total: resp.ContentLength, fn: progress}
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", errors.Wrap(err, "write body")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", errors.Wrap(err, "close temp")
	}
	return tmpPath, nil
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	fn      ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.fn(p.written, p.total)
	return n, err
}

func verifySHA256(path, wantHex string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, errors.Wrap(err, "open for checksum")
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, errors.Wrap(err, "hashing")
	}
	return hex.EncodeToString(h.Sum(nil)) == strings.ToLower(strings.TrimSpace(wantHex)), nil
}
