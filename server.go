package imgfit

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const (
	DefaultMaxUploadBytes = 10 * 1024 * 1024

	uploadsPrefix   = "/uploads/"
	processedPrefix = "/processed/"

	// room for the multipart envelope around the file
	multipartOverhead = 1 << 20
)

// AllowedExts are the accepted upload extensions.
var AllowedExts = []string{".png", ".jpg", ".jpeg"}

//go:embed templates/index.html
var templatesFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

type ServerConfig struct {
	Uploads        Storage
	Processed      Storage
	Processor      *Processor
	MaxUploadBytes int64
	Logger         hclog.Logger
}

type Server struct {
	conf    *ServerConfig
	handler http.Handler
}

// Checksummer is implemented by storages that record a content checksum.
// It is used as the ETag when serving files.
type Checksummer interface {
	Checksum(key string) (string, error)
}

func NewServer(conf ServerConfig) (*Server, error) {
	if conf.Logger == nil {
		conf.Logger = hclog.NewNullLogger()
	}
	if conf.Uploads == nil || conf.Processed == nil {
		return nil, errors.New("uploads and processed storage are required")
	}
	if conf.MaxUploadBytes <= 0 {
		conf.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if conf.Processor == nil {
		p, err := NewProcessor(ProcessorConfig{Logger: conf.Logger.Named("processor")})
		if err != nil {
			return nil, err
		}
		conf.Processor = p
	}

	s := &Server{
		conf: &conf,
	}

	mux := http.NewServeMux()
	mux.Handle("/", s.indexHandler())
	mux.Handle("/upload", s.uploadHandler())
	mux.Handle("/process", s.processHandler())
	mux.Handle(uploadsPrefix, s.fileHandler(uploadsPrefix, conf.Uploads, false))
	mux.Handle(processedPrefix, s.fileHandler(processedPrefix, conf.Processed, true))

	h := http.Handler(mux)
	h = s.slashRemover(h)
	h = s.requestLogger(h)
	s.handler = h
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type pageData struct {
	Error          string
	UploadedImage  string
	ProcessedImage string
}

func (s *Server) renderIndex(w http.ResponseWriter, data pageData) {
	w.Header().Set("content-type", "text/html; charset=utf-8")
	err := indexTemplate.Execute(w, data)
	if err != nil {
		s.conf.Logger.Error("Failed to render index", "error", err)
	}
}

func (s *Server) indexHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if r.Method != "GET" && r.Method != "HEAD" {
			http.Error(w, "Error", http.StatusMethodNotAllowed)
			return
		}
		s.renderIndex(w, pageData{})
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.conf.Logger.Error("Failed to write response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func allowedFile(filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	for _, e := range AllowedExts {
		if ext == e {
			return true
		}
	}
	return false
}

func (s *Server) tooLargeMessage() string {
	limit := s.conf.MaxUploadBytes
	if limit%(1<<20) == 0 {
		return fmt.Sprintf("File size exceeds %d MB", limit>>20)
	}
	if limit%(1<<10) == 0 {
		return fmt.Sprintf("File size exceeds %d KB", limit>>10)
	}
	return fmt.Sprintf("File size exceeds %d bytes", limit)
}

func (s *Server) uploadHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Error", http.StatusMethodNotAllowed)
			return
		}
		s.saveUpload(w, r)
	})
}

func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.conf.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	f, fh, err := r.FormFile("image")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.jsonError(w, http.StatusBadRequest, s.tooLargeMessage())
			return
		}
		s.conf.Logger.Debug("No image in form", "error", err)
		s.jsonError(w, http.StatusBadRequest, "No image uploaded")
		return
	}
	defer f.Close()

	if fh.Filename == "" {
		s.jsonError(w, http.StatusBadRequest, "No image selected")
		return
	}
	if !allowedFile(fh.Filename) {
		s.jsonError(w, http.StatusBadRequest, "Invalid file format. Only JPEG and PNG are allowed")
		return
	}
	if fh.Size > limit {
		s.jsonError(w, http.StatusBadRequest, s.tooLargeMessage())
		return
	}

	data := make([]byte, fh.Size)
	_, err = io.ReadFull(f, data)
	if err != nil {
		s.conf.Logger.Error("Failed to read upload", "filename", fh.Filename, "error", err)
		s.jsonError(w, http.StatusInternalServerError, "Error uploading image: "+err.Error())
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fh.Filename), "."))
	key, err := s.conf.Uploads.Save(data, ext)
	if err != nil {
		s.conf.Logger.Error("Failed to save upload", "filename", fh.Filename, "error", err)
		s.jsonError(w, http.StatusInternalServerError, "Error uploading image: "+err.Error())
		return
	}

	s.conf.Logger.Info("Uploaded", "key", key, "size", fh.Size)
	s.writeJSON(w, http.StatusOK, map[string]string{"uploaded_image": uploadsPrefix + key})
}

func (s *Server) processHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Error", http.StatusMethodNotAllowed)
			return
		}
		s.renderIndex(w, s.processUpload(r))
	})
}

// formInt parses an integer form value. A missing field is zero, an
// empty one is an error.
func formInt(r *http.Request, name string) (int, error) {
	v := strings.TrimSpace(r.PostFormValue(name))
	if _, ok := r.PostForm[name]; !ok {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) processUpload(r *http.Request) pageData {
	data := pageData{UploadedImage: r.PostFormValue("uploaded_image")}

	width, errW := formInt(r, "width")
	height, errH := formInt(r, "height")
	targetKB, errT := formInt(r, "target_size")
	if errW != nil || errH != nil || errT != nil {
		data.Error = "Invalid input parameters. Please enter valid numbers"
		return data
	}
	if data.UploadedImage == "" {
		data.Error = "No image uploaded for processing"
		return data
	}
	if width <= 0 || height <= 0 || targetKB <= 0 {
		data.Error = "Invalid parameters. Width, height, and target size must be positive"
		return data
	}

	key := strings.TrimPrefix(data.UploadedImage, uploadsPrefix)
	format, err := ParseFormat(path.Ext(key))
	if err != nil {
		data.Error = "Invalid file format. Only JPEG and PNG are allowed"
		return data
	}

	src, err := s.conf.Uploads.Open(key)
	if err != nil {
		s.conf.Logger.Debug("Failed to open upload", "key", key, "error", err)
		data.Error = "Uploaded image not found"
		return data
	}
	defer src.Close()

	params := Params{Width: width, Height: height, TargetKB: targetKB, Format: format}
	res, err := s.conf.Processor.Process(src, params)
	if err != nil {
		s.conf.Logger.Error("Failed to process image", "key", key, "error", err)
		data.Error = "Failed to process image: " + err.Error()
		return data
	}

	outKey, err := s.conf.Processed.Save(res.Bytes, res.Format.Ext())
	if err != nil {
		s.conf.Logger.Error("Failed to save processed image", "key", key, "error", err)
		data.Error = "Failed to process image: " + err.Error()
		return data
	}

	s.conf.Logger.Info("Processed",
		"source", key,
		"result", outKey,
		"size", res.Size,
		"quality", res.Quality,
		"attempts", res.Attempts,
	)
	data.ProcessedImage = processedPrefix + outKey
	return data
}

func (s *Server) fileHandler(prefix string, store Storage, attachment bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" || r.Method == "HEAD" {
			s.serveFile(w, r, prefix, store, attachment)
			return
		}

		http.Error(w, "Error", http.StatusBadRequest)
	})
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, prefix string, store Storage, attachment bool) {
	key := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, prefix))
	if key == "" {
		http.Error(w, "Invalid key", http.StatusBadRequest)
		return
	}

	obj, err := store.Open(key)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.conf.Logger.Error("Failed to open file", "key", key, "error", err)
		http.Error(w, "Invalid key", http.StatusBadRequest)
		return
	}
	defer obj.Close()

	if c, ok := store.(Checksummer); ok {
		sum, err := c.Checksum(key)
		if err == nil && sum != "" {
			w.Header().Set("etag", "\""+sum+"\"")
		}
	}
	if attachment {
		w.Header().Set("content-disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))
	}

	if r.Method == "HEAD" {
		w.Header().Set("content-type", mime.TypeByExtension(path.Ext(key)))
		w.Header().Set("content-length", strconv.FormatInt(obj.Size, 10))
		w.Header().Set("last-modified", obj.ModTime.UTC().Format(http.TimeFormat))
		w.WriteHeader(200)
		return
	}

	s.conf.Logger.Debug("Serve", "key", key)
	http.ServeContent(w, r, key, obj.ModTime, obj)
}

func (s *Server) slashRemover(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prefer non-trailing slash URLs over trailing slash URLs.
		p := r.URL.Path
		if p != "/" && p[len(p)-1] == '/' {
			p = strings.TrimRight(p, "/")
			http.Redirect(w, r, p, 301)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.conf.Logger.Debug("Request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		h.ServeHTTP(w, r)
	})
}
