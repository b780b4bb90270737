package imgfit

import (
	"io"
	"time"
)

// Object is an opened stored file.
type Object struct {
	io.ReadSeekCloser
	Size    int64
	ModTime time.Time
}

// Storage persists encoded files under generated keys.
// Keys carry the file extension they were saved with.
type Storage interface {
	Save(data []byte, ext string) (key string, err error)

	// Open returns ErrNotFound when the key does not exist.
	Open(key string) (*Object, error)
}

// Load reads the whole object stored under key.
func Load(s Storage, key string) ([]byte, error) {
	obj, err := s.Open(key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}
