//go:generate mockgen -destination=./mocks/fetcher.go -package=mocks . Downloader,Extractor

// Package fetcher brings a package into the local store: it downloads the
// artifact and unpacks it next to itself.
package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/glorpus-work/sitepkg/internal/logger"
	"github.com/glorpus-work/sitepkg/pkg/download"
	"github.com/glorpus-work/sitepkg/pkg/errors"
	"github.com/glorpus-work/sitepkg/pkg/fsutil"
	"github.com/glorpus-work/sitepkg/pkg/model"
	"github.com/glorpus-work/sitepkg/pkg/store"
)

// DefaultBaseURL is the download service used when none is configured.
const DefaultBaseURL = "https://api.siteserver.cn/downloads"

// Downloader is the subset of the download manager used by the fetcher.
type Downloader interface {
	Fetch(ctx context.Context, item download.Item, opts download.Options) (string, error)
}

// Extractor unpacks an artifact into a directory.
type Extractor interface {
	ExtractAll(ctx context.Context, archivePath, destDir string) error
}

// Fetcher downloads and unpacks packages into a Store.
type Fetcher struct {
	store   *store.Store
	dl      Downloader
	ex      Extractor
	baseURL *url.URL
}

// Option tweaks a single Fetch call.
type Option func(*options)

type options struct {
	progress download.ProgressFunc
}

// WithProgress reports download progress to fn.
func WithProgress(fn download.ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// New creates a Fetcher. An empty baseURL uses DefaultBaseURL.
func New(st *store.Store, dl Downloader, ex Extractor, baseURL string) (*Fetcher, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid download base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid download base url %q: scheme and host required", baseURL)
	}
	return &Fetcher{store: st, dl: dl, ex: ex, baseURL: u}, nil
}

// URL returns the download address of identity. The core package is served
// from /update/{version}, everything else from /package/{id}/{version}.
func (f *Fetcher) URL(identity model.PackageIdentity) *url.URL {
	if identity.IsCoreSystem(f.store.CoreID()) {
		return f.baseURL.JoinPath("update", identity.Version)
	}
	return f.baseURL.JoinPath("package", identity.ID, identity.Version)
}

// Fetch makes identity resident in the store. It returns false without any
// network access when the package is already downloaded. Other versions of
// the same id are purged first.
func (f *Fetcher) Fetch(ctx context.Context, identity model.PackageIdentity, opts ...Option) (bool, error) {
	if err := identity.Validate(); err != nil {
		return false, err
	}
	if f.store.IsDownloaded(identity) {
		logger.Debug("Package already downloaded", logger.Fields{"package": identity.ID, "version": identity.Version})
		return false, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := f.store.PurgeOtherVersions(identity); err != nil {
		return false, errors.Mark(errors.ErrFileCopyFailed, err)
	}

	dir := f.store.Path(identity)
	if err := fsutil.EnsureDir(dir); err != nil {
		return false, errors.Mark(errors.ErrFileCopyFailed, fmt.Errorf("failed to create package dir %s: %w", dir, err))
	}

	src := f.URL(identity)
	logger.Info("Downloading package", logger.Fields{"package": identity.ID, "version": identity.Version, "url": src.String()})

	artifact, err := f.dl.Fetch(ctx, download.Item{
		ID:       identity.Key(),
		URL:      src,
		Filename: identity.Key() + store.ArtifactExt,
		Progress: o.progress,
	}, download.Options{Dir: dir})
	if err != nil {
		_ = os.RemoveAll(dir)
		if errors.KindOf(err) == errors.KindUnknown {
			err = errors.Mark(errors.ErrArtifactFetchFailed, err)
		}
		return false, errors.Wrapf(err, "fetching %s", identity)
	}

	if err := f.ex.ExtractAll(ctx, artifact, dir); err != nil {
		_ = os.RemoveAll(dir)
		if errors.KindOf(err) == errors.KindUnknown {
			err = errors.Mark(errors.ErrArchiveExtractFailed, err)
		}
		return false, errors.Wrapf(err, "unpacking %s", identity)
	}
	return true, nil
}
