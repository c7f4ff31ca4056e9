package importer

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/config"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/internal/httpclient"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
)

// maxFilenameLength keeps local names within common filesystem limits.
const maxFilenameLength = 255

// Downloader fetches data dumps into a local directory, skipping dumps whose
// local copy is still current.
type Downloader struct {
	dir    string
	http   *httpclient.Client
	logger *zap.SugaredLogger
}

// NewDownloader returns a Downloader writing into dir.
func NewDownloader(dir string, hc *httpclient.Client, l *zap.SugaredLogger) *Downloader {
	if l == nil {
		l = logger.ComponentLogger("importer.download")
	}
	return &Downloader{dir: dir, http: hc, logger: l}
}

// Path returns the absolute local path for accessURL.
func (d *Downloader) Path(accessURL string) (string, error) {
	return filepath.Abs(filepath.Join(d.dir, Filename(accessURL)))
}

// Download stores the dump behind dist.AccessURL locally and returns its path.
func (d *Downloader) Download(ctx context.Context, dist *dataset.Distribution) (string, error) {
	if dist.AccessURL == "" {
		return "", errors.New("distribution has no access URL")
	}
	path, err := d.Path(dist.AccessURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid download directory %s", d.dir)
	}
	log := logger.FromContext(ctx, d.logger).With(logger.FieldURL, dist.AccessURL, logger.FieldFile, path)

	if upToDate(path, dist) {
		log.Debugw("Local copy is up to date, skipping download")
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), config.DefaultDirPermissions); err != nil {
		return "", errors.Wrapf(err, "failed to create download directory %s", filepath.Dir(path))
	}

	if isHTTP(dist.AccessURL) {
		err = d.fetchHTTP(ctx, dist.AccessURL, path)
	} else {
		err = d.fetchGetter(ctx, dist.AccessURL, path)
	}
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat %s", path)
	}
	if info.Size() <= 1 {
		log.Debugw("Data dump is empty")
		return "", errors.WithStack(errors.ErrEmptyDump)
	}

	log.Debugw("Downloaded data dump", logger.FieldSize, info.Size())
	return path, nil
}

func (d *Downloader) fetchHTTP(ctx context.Context, rawURL, path string) error {
	resp, err := d.http.Get(ctx, rawURL)
	if err != nil {
		return errors.Wrapf(err, "failed to download %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Newf("failed to download %s: %s", rawURL, resp.Status)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to save %s to %s", rawURL, path)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to save %s to %s", rawURL, path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to save %s to %s", rawURL, path)
	}
	return nil
}

// fetchGetter handles object stores, local files and go-getter forced
// sources such as s3::https://…
func (d *Downloader) fetchGetter(ctx context.Context, src, path string) error {
	pwd, _ := os.Getwd()
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  path,
		Pwd:  pwd,
		Mode: getter.ClientModeFile,
		// Containers cannot follow symlinks out of the mount
		Getters: copyingGetters(),
		// Dumps are decompressed by the index command, not here
		Decompressors: map[string]getter.Decompressor{},
	}
	if err := client.Get(); err != nil {
		return errors.Wrapf(err, "failed to download %s", src)
	}
	return nil
}

func copyingGetters() map[string]getter.Getter {
	getters := make(map[string]getter.Getter, len(getter.Getters))
	for scheme, g := range getter.Getters {
		getters[scheme] = g
	}
	getters["file"] = &getter.FileGetter{Copy: true}
	return getters
}

// upToDate reports whether the local copy at path can be used as is: it
// exists, the distribution declares a last-modified time the copy is not
// older than, and a declared byte size matches.
func upToDate(path string, dist *dataset.Distribution) bool {
	if dist.LastModified == nil {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if dist.ByteSize != nil && info.Size() != *dist.ByteSize {
		return false
	}
	return !info.ModTime().Before(*dist.LastModified)
}

func isHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Filename derives a filesystem-safe name from a URL: the scheme is dropped
// and reserved characters become '!', so https://example.com/file.nt maps
// to example.com!file.nt.
func Filename(rawURL string) string {
	name := rawURL
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
	}
	name = strings.TrimSuffix(name, "/")

	var b strings.Builder
	lastBang := false
	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(`<>:"/\|?*`, r) {
			if !lastBang {
				b.WriteRune('!')
			}
			lastBang = true
			continue
		}
		b.WriteRune(r)
		lastBang = false
	}

	name = strings.Trim(b.String(), ". ")
	if name == "" {
		name = "!"
	}
	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength]
		for !utf8.ValidString(name) {
			name = name[:len(name)-1]
		}
	}
	return name
}
