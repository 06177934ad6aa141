// Package fetcher downloads resolved PDF links into the local download directory.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ChunkSize is the read size used while streaming a PDF to disk.
const ChunkSize = 8192

var (
	// ErrUnexpectedContentType matches *UnexpectedContentTypeError.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrInvalidFileName is returned for names that are empty or escape the download directory.
	ErrInvalidFileName = errors.New("invalid file name")
)

// UnexpectedContentTypeError reports a download whose media type is not application/pdf.
type UnexpectedContentTypeError struct {
	URL         string
	ContentType string
}

func (e *UnexpectedContentTypeError) Error() string {
	return fmt.Sprintf("%s: %s returned %q", ErrUnexpectedContentType, e.URL, e.ContentType)
}

func (e *UnexpectedContentTypeError) Is(target error) bool {
	return target == ErrUnexpectedContentType
}

// Opener issues a GET in an existing scrape session. *scraper.Client satisfies it.
type Opener interface {
	Open(ctx context.Context, target, referer string, header http.Header) (*http.Response, error)
}

// Archiver mirrors a fetched file somewhere durable. *store.ObjectArchive satisfies it.
type Archiver interface {
	Put(ctx context.Context, localPath string) (string, error)
}

// Fetcher streams PDFs into Dir.
type Fetcher struct {
	opener   Opener
	archiver Archiver

	mu  sync.RWMutex
	dir string
}

// New returns a Fetcher writing into dir through opener.
func New(opener Opener, dir string) *Fetcher {
	return &Fetcher{opener: opener, dir: dir}
}

// WithArchiver enables mirroring of every successful fetch.
func (f *Fetcher) WithArchiver(a Archiver) *Fetcher {
	f.archiver = a
	return f
}

// Dir returns the current download directory.
func (f *Fetcher) Dir() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dir
}

// SetDir switches the download directory for subsequent fetches.
func (f *Fetcher) SetDir(dir string) {
	f.mu.Lock()
	f.dir = dir
	f.mu.Unlock()
}

// Filename maps a book title to its on-disk name: spaces become underscores and ".pdf" is
// appended. Path separators are replaced as well so a title can never leave the directory.
func Filename(title string) string {
	name := strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(strings.TrimSpace(title))
	return name + ".pdf"
}

// Fetch downloads pdfURL and stores it as Filename(title). Nothing is written unless the
// response media type is application/pdf. An existing file with the same name is replaced.
func (f *Fetcher) Fetch(ctx context.Context, pdfURL, title string) (string, error) {
	dir := f.Dir()
	name := Filename(title)
	if strings.TrimSpace(title) == "" || name == ".pdf" {
		return "", fmt.Errorf("%w: empty title", ErrInvalidFileName)
	}

	resp, err := f.opener.Open(ctx, pdfURL, pdfURL, http.Header{
		"Accept":          {"application/pdf,*/*;q=0.8"},
		"Accept-Encoding": {"identity"},
	})
	if err != nil {
		return "", err
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, errParse := mime.ParseMediaType(contentType); errParse != nil || mediaType != "application/pdf" {
		return "", &UnexpectedContentTypeError{URL: pdfURL, ContentType: contentType}
	}

	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".fetch-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	written, err := copyChunks(tmp, resp.Body)
	if errClose := tmp.Close(); err == nil {
		err = errClose
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("download %s: %w", pdfURL, err)
	}

	dest := filepath.Join(dir, name)
	if err = os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	log.WithFields(log.Fields{"title": title, "path": dest}).Infof("fetched %d bytes", written)

	if f.archiver != nil {
		if key, errArchive := f.archiver.Put(ctx, dest); errArchive != nil {
			log.WithField("path", dest).Warnf("archive upload failed: %v", errArchive)
		} else {
			log.WithField("path", dest).Debugf("archived as %s", key)
		}
	}
	return dest, nil
}

// Path returns the absolute location of a previously fetched file.
func (f *Fetcher) Path(name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" || clean != filepath.Base(clean) || clean == "." || clean == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return filepath.Join(f.Dir(), clean), nil
}

// Remove deletes a previously fetched file. A missing file reports fs.ErrNotExist.
func (f *Fetcher) Remove(name string) error {
	p, err := f.Path(name)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, fs.ErrNotExist)
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func copyChunks(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		n, errRead := src.Read(buf)
		if n > 0 {
			w, errWrite := dst.Write(buf[:n])
			total += int64(w)
			if errWrite != nil {
				return total, errWrite
			}
		}
		if errRead == io.EOF {
			return total, nil
		}
		if errRead != nil {
			return total, errRead
		}
	}
}
