package session

import (
	"bytes"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/pixelkit/bgremover/pkg/errors"
)

// File is a handle on a user-supplied file. Name, MediaType and Size are the
// declared values; they are checked before Open is ever called.
type File interface {
	Name() string
	MediaType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type memoryFile struct {
	name      string
	mediaType string
	data      []byte
}

// NewMemoryFile wraps bytes already held in memory
func NewMemoryFile(name, mediaType string, data []byte) File {
	return &memoryFile{name: name, mediaType: mediaType, data: data}
}

func (f *memoryFile) Name() string      { return f.name }
func (f *memoryFile) MediaType() string { return f.mediaType }
func (f *memoryFile) Size() int64       { return int64(len(f.data)) }

func (f *memoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type localFile struct {
	path      string
	mediaType string
	size      int64
}

// OpenLocalFile stats path and declares its media type from the extension,
// the same way a file picker does.
func OpenLocalFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat file")
	}
	if info.IsDir() {
		return nil, errors.Wrap(errors.ErrInvalidFileType, path+" is a directory")
	}

	return &localFile{
		path:      path,
		mediaType: mime.TypeByExtension(filepath.Ext(path)),
		size:      info.Size(),
	}, nil
}

func (f *localFile) Name() string      { return filepath.Base(f.path) }
func (f *localFile) MediaType() string { return f.mediaType }
func (f *localFile) Size() int64       { return f.size }

func (f *localFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}
