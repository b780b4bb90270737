package imgfit_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/szxp/imgfit"
	"github.com/szxp/imgfit/memstore"
)

type testServer struct {
	*imgfit.Server
	uploads   *memstore.Store
	processed *memstore.Store
}

func newTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()
	ts := &testServer{
		uploads:   memstore.New("upload"),
		processed: memstore.New("processed"),
	}
	s, err := imgfit.NewServer(imgfit.ServerConfig{
		Uploads:        ts.uploads,
		Processed:      ts.processed,
		MaxUploadBytes: maxUpload,
	})
	require.NoError(t, err)
	ts.Server = s
	return ts
}

func (ts *testServer) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.ServeHTTP(w, r)
	return w
}

func uploadRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest("POST", "/upload", body)
	r.Header.Set("content-type", mw.FormDataContentType())
	return r
}

func processRequest(values url.Values) *http.Request {
	r := httptest.NewRequest("POST", "/process", strings.NewReader(values.Encode()))
	r.Header.Set("content-type", "application/x-www-form-urlencoded")
	return r
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	m := map[string]string{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

var processedLinkRE = regexp.MustCompile(`href="(/processed/[^"]+)"`)

func (ts *testServer) upload(t *testing.T, filename string, data []byte) string {
	t.Helper()
	w := ts.do(uploadRequest(t, filename, data))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	uploaded := decodeJSON(t, w)["uploaded_image"]
	require.True(t, strings.HasPrefix(uploaded, "/uploads/upload_"), uploaded)
	return uploaded
}

func TestServer_Index(t *testing.T) {
	ts := newTestServer(t, 0)

	w := ts.do(httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Image resizer")

	w = ts.do(httptest.NewRequest("GET", "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_UploadErrors(t *testing.T) {
	ts := newTestServer(t, 1024)

	w := ts.do(uploadRequest(t, "", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No image uploaded", decodeJSON(t, w)["error"])

	w = ts.do(uploadRequest(t, "anim.gif", []byte("GIF89a")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid file format. Only JPEG and PNG are allowed", decodeJSON(t, w)["error"])

	w = ts.do(uploadRequest(t, "big.png", make([]byte, 1025)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File size exceeds 1 KB", decodeJSON(t, w)["error"])

	// a body past the multipart allowance is cut off while parsing
	w = ts.do(uploadRequest(t, "huge.png", make([]byte, 3<<20)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File size exceeds 1 KB", decodeJSON(t, w)["error"])

	w = ts.do(httptest.NewRequest("GET", "/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	assert.Zero(t, ts.uploads.Len())
}

func TestServer_UploadProcessDownloadPNG(t *testing.T) {
	ts := newTestServer(t, 0)
	src := encodePNG(t, gradientImage(80, 60))

	uploaded := ts.upload(t, "photo.PNG", src)
	assert.True(t, strings.HasSuffix(uploaded, ".png"), uploaded)

	w := ts.do(httptest.NewRequest("GET", uploaded, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, src, w.Body.Bytes())
	assert.Empty(t, w.Header().Get("content-disposition"))

	w = ts.do(processRequest(url.Values{
		"uploaded_image": {uploaded},
		"width":          {"40"},
		"height":         {"30"},
		"target_size":    {"1"},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	m := processedLinkRE.FindStringSubmatch(w.Body.String())
	require.Len(t, m, 2, w.Body.String())
	assert.True(t, strings.HasSuffix(m[1], ".png"), m[1])

	w = ts.do(httptest.NewRequest("GET", m[1], nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("content-disposition"), "attachment")
	assert.Equal(t, "image/png", w.Header().Get("content-type"))

	out, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), out.Bounds())
}

func TestServer_ProcessJPEG(t *testing.T) {
	ts := newTestServer(t, 0)
	uploaded := ts.upload(t, "photo.jpg", encodeJPEG(t, gradientImage(120, 90), 95))

	w := ts.do(processRequest(url.Values{
		"uploaded_image": {uploaded},
		"width":          {"60"},
		"height":         {"45"},
		"target_size":    {"100"},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	m := processedLinkRE.FindStringSubmatch(w.Body.String())
	require.Len(t, m, 2, w.Body.String())
	assert.True(t, strings.HasSuffix(m[1], ".jpeg"), m[1])

	w = ts.do(httptest.NewRequest("GET", m[1], nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(body), 100*1024)

	out, err := jpeg.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 60, 45), out.Bounds())
	assert.Equal(t, 1, ts.processed.Len())
}

func TestServer_ProcessErrors(t *testing.T) {
	ts := newTestServer(t, 0)
	uploaded := ts.upload(t, "photo.png", encodePNG(t, gradientImage(10, 10)))
	broken := ts.upload(t, "broken.png", []byte("not a png"))

	tests := []struct {
		name   string
		values url.Values
		msg    string
	}{
		{
			"not a number",
			url.Values{"uploaded_image": {uploaded}, "width": {"ten"}, "height": {"10"}, "target_size": {"1"}},
			"Invalid input parameters. Please enter valid numbers",
		},
		{
			"no upload",
			url.Values{"width": {"10"}, "height": {"10"}, "target_size": {"1"}},
			"No image uploaded for processing",
		},
		{
			"zero height",
			url.Values{"uploaded_image": {uploaded}, "width": {"10"}, "height": {"0"}, "target_size": {"1"}},
			"Invalid parameters. Width, height, and target size must be positive",
		},
		{
			"blank width",
			url.Values{"uploaded_image": {uploaded}, "width": {""}, "height": {"10"}, "target_size": {"1"}},
			"Invalid input parameters. Please enter valid numbers",
		},
		{
			"missing target",
			url.Values{"uploaded_image": {uploaded}, "width": {"10"}, "height": {"10"}},
			"Invalid parameters. Width, height, and target size must be positive",
		},
		{
			"unknown upload",
			url.Values{"uploaded_image": {"/uploads/upload_missing.png"}, "width": {"10"}, "height": {"10"}, "target_size": {"1"}},
			"Uploaded image not found",
		},
		{
			"undecodable",
			url.Values{"uploaded_image": {broken}, "width": {"10"}, "height": {"10"}, "target_size": {"1"}},
			"Failed to process image: decode image",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(processRequest(tt.values))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.msg)
			assert.NotRegexp(t, processedLinkRE, w.Body.String())
		})
	}
	assert.Zero(t, ts.processed.Len())
}

func TestServer_Files(t *testing.T) {
	ts := newTestServer(t, 0)
	uploaded := ts.upload(t, "photo.png", encodePNG(t, gradientImage(10, 10)))

	w := ts.do(httptest.NewRequest("HEAD", uploaded, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("content-type"))
	assert.NotEmpty(t, w.Header().Get("content-length"))

	w = ts.do(httptest.NewRequest("GET", "/uploads/upload_missing.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(httptest.NewRequest("PUT", uploaded, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(httptest.NewRequest("GET", uploaded+"/", nil))
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, uploaded, w.Header().Get("location"))
}

func TestNewServer_RequiresStorage(t *testing.T) {
	_, err := imgfit.NewServer(imgfit.ServerConfig{})
	assert.Error(t, err)
}
