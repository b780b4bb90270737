package filestore

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/szxp/imgfit"
)

type Config struct {
	Dir string

	// Prefix is prepended to generated file names, e.g. "upload".
	Prefix string

	// AllowedExts lists the accepted extensions including the dot.
	AllowedExts []string
	Logger      hclog.Logger
}

// Store keeps files in a single directory.
type Store struct {
	conf *Config
}

func New(conf Config) (*Store, error) {
	if conf.Logger == nil {
		conf.Logger = hclog.NewNullLogger()
	}
	if conf.Dir == "" {
		return nil, fmt.Errorf("no dir given")
	}
	err := os.MkdirAll(conf.Dir, 0754)
	if err != nil {
		return nil, fmt.Errorf("failed to create dir %v: %w", conf.Dir, err)
	}
	return &Store{conf: &conf}, nil
}

func (s *Store) Save(data []byte, ext string) (string, error) {
	ext = strings.TrimPrefix(ext, ".")
	name := uuid.New().String() + "." + ext
	if s.conf.Prefix != "" {
		name = s.conf.Prefix + "_" + name
	}
	err := s.validateKey(name)
	if err != nil {
		return "", err
	}

	_, err = s.writeFileMD5(s.keyPath(name), data)
	if err != nil {
		return "", err
	}
	return name, nil
}

func (s *Store) Open(key string) (*imgfit.Object, error) {
	err := s.validateKey(key)
	if err != nil {
		return nil, err
	}

	p := s.keyPath(key)
	s.conf.Logger.Debug("Open", "path", p)
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%v: %w", key, imgfit.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	return &imgfit.Object{
		ReadSeekCloser: f,
		Size:           fi.Size(),
		ModTime:        fi.ModTime(),
	}, nil
}

// Checksum returns the hex MD5 recorded when key was saved.
func (s *Store) Checksum(key string) (string, error) {
	err := s.validateKey(key)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(s.keyPath(key) + ".md5")
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%v: %w", key, imgfit.ErrNotFound)
	}
	return string(b), err
}

func (s *Store) keyPath(key string) string {
	return filepath.Join(s.conf.Dir, filepath.FromSlash(key))
}

var keyRE *regexp.Regexp = regexp.MustCompile(`^[a-zA-Z0-9/._-]+$`)

func (s *Store) validateKey(key string) error {
	if !keyRE.MatchString(key) {
		return fmt.Errorf("invalid key: %v", key)
	}

	cleaned := path.Clean(key)
	if cleaned != key ||
		key == "." ||
		key[0] == '/' ||
		strings.Contains(key, "..") {
		return fmt.Errorf("invalid key: %v", key)
	}

	ext := path.Ext(key)
	if ext == "" {
		return fmt.Errorf("no ext: %v", key)
	}

	for _, e := range s.conf.AllowedExts {
		if strings.EqualFold(ext, e) {
			return nil
		}
	}
	return fmt.Errorf("invalid ext: %v", key)
}

func (s *Store) writeFileMD5(p string, data []byte) (string, error) {
	s.conf.Logger.Debug("Write file", "path", p, "size", len(data))
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	w := io.MultiWriter(f, h)
	_, err = w.Write(data)
	if err != nil {
		return "", err
	}

	sum := fmt.Sprintf("%x", h.Sum(nil))
	pathMD5 := p + ".md5"
	s.conf.Logger.Debug("Write MD5 file", "path", pathMD5, "md5", sum)
	err = os.WriteFile(pathMD5, []byte(sum), 0644)
	if err != nil {
		return "", err
	}
	return sum, nil
}
