package minio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	fsbilly "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/testutil"
)

// fakeServer answers path-style object requests for one bucket.
type fakeServer struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/site/")

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		data, err := readBody(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.objects[key] = data
		s.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", fmt.Sprintf("%q", testutil.MD5Hex(string(data))))
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		data, ok := s.objects[key]
		if !ok {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>`+
				`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message>`+
				`<Key>%s</Key><BucketName>site</BucketName></Error>`, key)
			return
		}
		w.Header().Set("ETag", fmt.Sprintf("%q", testutil.MD5Hex(string(data))))
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	case http.MethodDelete:
		delete(s.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// readBody returns the object payload of a PUT, decoding the aws-chunked
// framing minio-go uses when it streams a signed payload over plain HTTP.
func readBody(r *http.Request) ([]byte, error) {
	if !strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
		return io.ReadAll(r.Body)
	}

	var out []byte
	br := bufio.NewReader(r.Body)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimRight(line, "\r\n"), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chunk header %q: %w", line, err)
		}
		if size == 0 {
			break
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(br, chunk); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}

	if want := r.Header.Get("X-Amz-Decoded-Content-Length"); want != "" && want != strconv.Itoa(len(out)) {
		return nil, fmt.Errorf("decoded %d bytes, header says %s", len(out), want)
	}
	return out, nil
}

func (s *fakeServer) object(key string) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.objects[key]), s.types[key]
}

func newTestBackend(t *testing.T, files map[string]string) (*Backend, *fakeServer) {
	t.Helper()
	fake := &fakeServer{objects: make(map[string][]byte), types: make(map[string]string)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	local := fsbilly.NewInMemoryFS()
	for name, content := range files {
		require.NoError(t, local.WriteFile(name, []byte(content), 0o644))
	}

	b, err := New(strings.TrimPrefix(srv.URL, "http://"), "site",
		WithCredentials("minioadmin", "minioadmin"),
		WithRegion("us-east-1"),
		WithFilesystem(local),
	)
	require.NoError(t, err)
	return b, fake
}

func TestNew(t *testing.T) {
	_, err := New("", "site")
	assert.True(t, objerrors.IsInvalidInput(err))

	_, err = New("localhost:9000", "")
	assert.True(t, objerrors.IsInvalidInput(err))

	b, err := New("localhost:9000", "site", WithSecure(true))
	require.NoError(t, err)
	assert.NotNil(t, b.Client())
}

func TestBackendObjects(t *testing.T) {
	ctx := context.Background()
	b, fake := newTestBackend(t, map[string]string{"/src/page.html": "<html><body>x</body></html>"})

	require.NoError(t, b.Put(ctx, "/src/page.html", "www/page.html"))
	body, contentType := fake.object("www/page.html")
	assert.Equal(t, "<html><body>x</body></html>", body)
	assert.True(t, strings.HasPrefix(contentType, "text/html"), contentType)

	ok, err := b.Exists(ctx, "www/page.html")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := b.Get(ctx, "www/page.html")
	require.NoError(t, err)
	assert.Equal(t, "<html><body>x</body></html>", string(data))

	require.NoError(t, b.Delete(ctx, "www/page.html"))
	ok, err = b.Exists(ctx, "www/page.html")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackendNotFound(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t, nil)

	_, err := b.Get(ctx, "www/version.txt")
	require.Error(t, err)
	assert.True(t, objerrors.IsNotFound(err))

	err = b.Put(ctx, "/src/missing", "www/missing")
	assert.True(t, objerrors.IsIO(err))
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}, true},
		{"not found", minio.ErrorResponse{Code: "NotFound", StatusCode: 404}, true},
		{"no such bucket", minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: 404}, false},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, false},
		{"plain", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateError("get", "k", tt.err)
			assert.Equal(t, tt.notFound, objerrors.IsNotFound(err))
			assert.Equal(t, !tt.notFound, objerrors.IsBackend(err))
		})
	}
}

func TestReadBodyChunked(t *testing.T) {
	body := "5;chunk-signature=aa\r\nhello\r\n6;chunk-signature=bb\r\n world\r\n0;chunk-signature=cc\r\n\r\n"
	r := httptest.NewRequest(http.MethodPut, "/site/k", strings.NewReader(body))
	r.Header.Set("X-Amz-Content-Sha256", "STREAMING-AWS4-HMAC-SHA256-PAYLOAD")
	r.Header.Set("X-Amz-Decoded-Content-Length", "11")

	data, err := readBody(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	plain := httptest.NewRequest(http.MethodPut, "/site/k", strings.NewReader("raw"))
	data, err = readBody(plain)
	require.NoError(t, err)
	assert.Equal(t, "raw", string(data))
}
