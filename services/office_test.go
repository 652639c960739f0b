package services

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

// readUploadedFile extracts the "file" form field from a multipart request.
func readUploadedFile(t *testing.T, r *http.Request) (filename string, content []byte) {
	t.Helper()

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)

	reader := multipart.NewReader(r.Body, params["boundary"])
	defer func() { _ = r.Body.Close() }()

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		if part.FormName() == "file" {
			filename = part.FileName()
			content, err = io.ReadAll(part)
			require.NoError(t, err)
		} else {
			_, _ = io.Copy(io.Discard, part)
		}
		_ = part.Close()
	}
	return filename, content
}

func TestOfficeService_DocxToHTML(t *testing.T) {
	t.Parallel()

	svc := NewOfficeService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/convert/docx-to-html", r.URL.Path)

		filename, content := readUploadedFile(t, r)
		assert.Equal(t, "resume.docx", filename)
		assert.Equal(t, []byte("PK-bytes"), content)

		return jsonResponse(http.StatusOK, `{"success":true,"html":"<p>rendered</p>","hash":"abc"}`), nil
	})

	got, err := svc.DocxToHTML(context.Background(), []byte("PK-bytes"), "resume.docx")
	require.NoError(t, err)
	assert.Equal(t, []byte("<p>rendered</p>"), got)
}

func TestOfficeService_DocxToHTML_DefaultFilename(t *testing.T) {
	t.Parallel()

	svc := NewOfficeService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		filename, _ := readUploadedFile(t, r)
		assert.Equal(t, "document.docx", filename)
		return jsonResponse(http.StatusOK, `{"success":true,"html":"<p>x</p>"}`), nil
	})

	_, err := svc.DocxToHTML(context.Background(), []byte("PK"), "")
	require.NoError(t, err)
}

func TestOfficeService_DocxToHTML_Rejected(t *testing.T) {
	t.Parallel()

	svc := NewOfficeService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"success":false,"error":"unreadable document"}`), nil
	})

	_, err := svc.DocxToHTML(context.Background(), []byte("PK"), "bad.docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable document")
}

func TestOfficeService_DocxToHTML_BadStatus(t *testing.T) {
	t.Parallel()

	svc := NewOfficeService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, "converter crashed"), nil
	})

	_, err := svc.DocxToHTML(context.Background(), []byte("PK"), "doc.docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "converter crashed")
}

func TestOfficeService_HTMLToDocx(t *testing.T) {
	t.Parallel()

	svc := NewOfficeService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/convert/html-to-docx", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req encodeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "<h1>Title</h1>", req.HTML)
		assert.Equal(t, "letterhead", req.Template)

		return jsonResponse(http.StatusOK, "PK\x03\x04docx-bytes"), nil
	})

	got, err := svc.HTMLToDocx(context.Background(), "<h1>Title</h1>", "letterhead")
	require.NoError(t, err)
	assert.Equal(t, []byte("PK\x03\x04docx-bytes"), got)
}

func TestOfficeService_HTMLToDocx_EmptyBody(t *testing.T) {
	t.Parallel()

	svc := NewOfficeService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, ""), nil
	})

	_, err := svc.HTMLToDocx(context.Background(), "<p>x</p>", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty document")
}

func TestOfficeService_Healthy(t *testing.T) {
	t.Parallel()

	svc := NewOfficeService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/health", r.URL.Path)
		return jsonResponse(http.StatusOK, `{"status":"healthy"}`), nil
	})

	assert.NoError(t, svc.Healthy(context.Background()))
}

func TestOfficeService_Unhealthy(t *testing.T) {
	t.Parallel()

	svc := NewOfficeService("http://example.invalid")
	svc.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusServiceUnavailable, ""), nil
	})

	err := svc.Healthy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
