package filestore

import (
	"io/ioutil"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidoparadise/kido/core"
)

func newTestStore() *Store {
	s := New(afero.NewMemMapFs())
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

func TestStore_SaveCover(t *testing.T) {
	s := newTestStore()

	url, err := s.SaveCover("image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Regexp(t, `^/uploads/covers/[0-9a-f-]{36}\.png$`, url)

	_, err = s.SaveCover("image/gif", strings.NewReader("gif"))
	verr, ok := err.(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, "file", verr.Fields[0].Field)
}

func TestStore_SaveVideo(t *testing.T) {
	s := newTestStore()

	url, err := s.SaveVideo("my first video.mp4", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/1700000000000-my_first_video.mp4", url)

	url, err = s.SaveVideo("../../etc/passwd", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/1700000000000-passwd", url)
}

func TestStore_SaveReceipt(t *testing.T) {
	s := newTestStore()

	url, err := s.SaveReceipt("receipt.PDF", strings.NewReader("pdf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/transfers/"))
	assert.True(t, strings.HasSuffix(url, ".pdf"))

	url, err = s.SaveReceipt("receipt.exe", strings.NewReader("exe"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, ".jpg"))
}

func TestStore_RemoveReceipt(t *testing.T) {
	s := newTestStore()
	url, err := s.SaveReceipt("receipt.png", strings.NewReader("png"))
	require.NoError(t, err)

	require.NoError(t, s.RemoveReceipt(url))
	_, _, err = s.Open(url)
	assert.Equal(t, ErrFileNotFound, err)
	assert.NoError(t, s.RemoveReceipt(url))

	cover, err := s.SaveCover("image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, ErrFileNotFound, s.RemoveReceipt(cover))
	_, _, err = s.Open(cover)
	assert.NoError(t, err)
}

func TestStore_Open(t *testing.T) {
	s := newTestStore()
	url, err := s.SaveVideo("clip.mp4", strings.NewReader("0123456789"))
	require.NoError(t, err)

	f, info, err := s.Open(url)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.EqualValues(t, 10, info.Size())
	data, err := ioutil.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	for _, bad := range []string{"/uploads/missing.mp4", "/etc/passwd", "/uploads/../fs.go", "/uploads/", "/uploads/covers"} {
		_, _, err = s.Open(bad)
		assert.Equal(t, ErrFileNotFound, err, bad)
	}
}
