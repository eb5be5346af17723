package filestore

import (
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/kidoparadise/kido/core"
)

const (
	// URLPrefix is the public URL prefix of every uploaded file.
	URLPrefix = "/uploads/"

	uploadsDir   = "uploads"
	coversDir    = "uploads/covers"
	transfersDir = "uploads/transfers"
)

var (
	// errors
	ErrFileNotFound     = core.NewNotFoundError("file not found")
	ErrUnsupportedImage = errors.New("unsupported format: use JPG, PNG or WEBP")

	coverExts = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	}
	imageExts   = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}
	receiptExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".pdf": true}

	spaceRegex = regexp.MustCompile(`\s+`)
)

// Store keeps uploaded files under the "uploads" dir of a public file tree.
type Store struct {
	fs  afero.Fs
	now func() time.Time
}

func New(fs afero.Fs) *Store {
	return &Store{fs: fs, now: time.Now}
}

// NewOsStore roots the Store at publicDir on the local disk.
func NewOsStore(publicDir string) *Store {
	return New(afero.NewBasePathFs(afero.NewOsFs(), publicDir))
}

func (s *Store) write(dir, name string, r io.Reader) (string, error) {
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating %s", dir)
	}
	p := path.Join(dir, name)
	if err := afero.WriteReader(s.fs, p, r); err != nil {
		return "", errors.Wrapf(err, "writing %s", p)
	}
	return "/" + p, nil
}

func extOf(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// SaveCover stores a course cover. Only JPEG, PNG and WEBP images are accepted.
func (s *Store) SaveCover(contentType string, r io.Reader) (string, error) {
	ext, ok := coverExts[strings.ToLower(contentType)]
	if !ok {
		return "", core.NewValidationError(ErrUnsupportedImage, core.FieldError{Field: "file", Error: ErrUnsupportedImage.Error()})
	}
	return s.write(coversDir, uuid.New().String()+ext, r)
}

// SaveImage stores an image with a random name, keeping its extension when it is a known image one.
func (s *Store) SaveImage(filename string, r io.Reader) (string, error) {
	ext := extOf(filename)
	if !imageExts[ext] {
		ext = ".jpg"
	}
	return s.write(coversDir, uuid.New().String()+ext, r)
}

// SaveVideo stores a video as "<unix millis>-<name>", whitespace replaced by underscores.
func (s *Store) SaveVideo(filename string, r io.Reader) (string, error) {
	name := spaceRegex.ReplaceAllString(filepath.Base(filepath.Clean("/"+filename)), "_")
	if name == "/" || name == "." {
		name = "video.mp4"
	}
	name = strconv.FormatInt(s.now().UnixNano()/int64(time.Millisecond), 10) + "-" + name
	return s.write(uploadsDir, name, r)
}

// SaveReceipt stores a bank transfer receipt under a random name.
func (s *Store) SaveReceipt(filename string, r io.Reader) (string, error) {
	ext := extOf(filename)
	if !receiptExts[ext] {
		ext = ".jpg"
	}
	return s.write(transfersDir, uuid.New().String()+ext, r)
}

// RemoveReceipt deletes a receipt stored by SaveReceipt. Removing a missing receipt is a no-op.
func (s *Store) RemoveReceipt(url string) error {
	p, ok := relPath(url)
	if !ok || !strings.HasPrefix(p, transfersDir+"/") {
		return ErrFileNotFound
	}
	if err := s.fs.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", p)
	}
	return nil
}

// relPath maps a public URL to its path in the Store. URLs outside of URLPrefix are rejected.
func relPath(url string) (string, bool) {
	if !strings.HasPrefix(url, URLPrefix) {
		return "", false
	}
	rel := path.Clean(strings.TrimPrefix(url, URLPrefix))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return "", false
	}
	return path.Join(uploadsDir, rel), true
}

// Open opens the file behind a public URL. The caller must close it.
func (s *Store) Open(url string) (afero.File, os.FileInfo, error) {
	p, ok := relPath(url)
	if !ok {
		return nil, nil, ErrFileNotFound
	}
	f, err := s.fs.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, errors.Wrapf(err, "opening %s", p)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrapf(err, "reading %s", p)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, ErrFileNotFound
	}
	return f, info, nil
}

// HTTPDir serves the uploads dir, for static file routes.
func (s *Store) HTTPDir() http.FileSystem {
	return afero.NewHttpFs(s.fs).Dir(uploadsDir)
}
