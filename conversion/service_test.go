package conversion

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"docbridge/cache"
	"docbridge/config"
	"docbridge/models"
	"docbridge/services"
	"docbridge/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:           "test",
		WorkerCount:      2,
		OfficeServiceURL: "http://office.invalid",
		ServiceTimeout:   2 * time.Second,
		DirectTimeout:    time.Second,
		ExtractTimeout:   time.Second,
		MaxInputBytes:    1 << 20,
		CacheTTL:         time.Minute,
		DocumentCacheTTL: time.Hour,
		BatchRetention:   time.Hour,
		ArtifactDir:      t.TempDir(),
	}
}

// newTestService assembles a pipeline around a fake pool executor. The
// direct converter is absent and history is disabled, mirroring the minimal
// deployment.
func newTestService(t *testing.T, cfg *config.Config, exec worker.ExecutorFunc) *Service {
	t.Helper()

	store := cache.NewMemoryStore()
	pool := worker.NewPool(worker.Options{Size: cfg.WorkerCount, JobTimeout: cfg.ServiceTimeout}, exec, zerolog.Nop())
	artifacts, err := services.NewLocalArtifactStore(cfg.ArtifactDir)
	require.NoError(t, err)

	svc := NewService(cfg, Deps{
		Cache:     store,
		Pool:      pool,
		Office:    services.NewOfficeService(cfg.OfficeServiceURL),
		Artifacts: artifacts,
	}, zerolog.Nop())

	t.Cleanup(func() {
		svc.Close()
		pool.Close()
		_ = store.Close()
	})
	return svc
}

func succeedWith(data []byte) worker.ExecutorFunc {
	return func(context.Context, *models.ConversionJob) (*models.ConversionResult, error) {
		return &models.ConversionResult{Success: true, Data: data}, nil
	}
}

func alwaysFail(reason string) worker.ExecutorFunc {
	return func(context.Context, *models.ConversionJob) (*models.ConversionResult, error) {
		return nil, errors.New(reason)
	}
}

// fixtureDocx builds a real container the fallback extractor can read.
func fixtureDocx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()

	body := ""
	for _, p := range paragraphs {
		body += `<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` + body + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

// seedStoredDocument places a document where the local artifact store will
// resolve its key.
func seedStoredDocument(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
}

func TestDecodeDocx_Validation(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	svc := newTestService(t, cfg, succeedWith([]byte("<p>x</p>")))
	ctx := context.Background()

	_, err := svc.DecodeDocx(ctx, nil, models.ConversionOptions{})
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.DecodeDocx(ctx, []byte("this is not a container"), models.ConversionOptions{})
	assert.ErrorIs(t, err, ErrNotDocx)

	huge := bytes.Repeat([]byte("a"), cfg.MaxInputBytes+1)
	_, err = svc.DecodeDocx(ctx, huge, models.ConversionOptions{})
	assert.ErrorIs(t, err, ErrInputTooLarge)
}

func TestDecodeDocx_ServiceEngine(t *testing.T) {
	t.Parallel()

	rendered := []byte("<p>This paragraph carries enough visible text to look like a real document.</p>")
	svc := newTestService(t, testConfig(t), succeedWith(rendered))

	input := []byte("PK\x03\x04 pretend docx payload")
	res, err := svc.DecodeDocx(context.Background(), input, models.ConversionOptions{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, rendered, res.Data)
	assert.False(t, res.Cached)
	assert.Equal(t, EngineOfficeService, res.Metadata.Engine)
	assert.Equal(t, contentTypeHTML, res.Metadata.ContentType)
	assert.Equal(t, "inline", res.Metadata.Disposition)
	assert.Equal(t, len(input), res.Metadata.OriginalSize)
	assert.Equal(t, len(rendered), res.Metadata.ConvertedSize)
	assert.Len(t, res.ContentHash, 64)
}

func TestDecodeDocx_CacheHit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	exec := func(context.Context, *models.ConversionJob) (*models.ConversionResult, error) {
		calls.Add(1)
		return &models.ConversionResult{Success: true, Data: []byte("<p>converted</p>")}, nil
	}

	svc := newTestService(t, testConfig(t), exec)
	ctx := context.Background()
	input := []byte("PK\x03\x04 same bytes every time")

	first, err := svc.DecodeDocx(ctx, input, models.ConversionOptions{})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.DecodeDocx(ctx, input, models.ConversionOptions{})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, EngineCache, second.Metadata.Engine)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, int64(1), calls.Load(), "identical input must not reconvert")

	// A different template is a different artifact.
	_, err = svc.DecodeDocx(ctx, input, models.ConversionOptions{Template: "letterhead"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestDecodeDocx_FallsBackToExtractor(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, testConfig(t), alwaysFail("office service unreachable"))

	input := fixtureDocx(t,
		"Jordan Smith",
		"Built conversion pipelines for seven years.",
	)

	res, err := svc.DecodeDocx(context.Background(), input, models.ConversionOptions{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, EngineExtractor, res.Metadata.Engine)
	assert.Contains(t, string(res.Data), "<h1>Jordan Smith</h1>")
	assert.Contains(t, string(res.Data), "Built conversion pipelines for seven years.")
	assert.Equal(t, len(input), res.Metadata.OriginalSize)
}

func TestDecodeDocx_AllStrategiesFail(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, testConfig(t), alwaysFail("office service unreachable"))

	// Signature passes validation but the container is unreadable, so the
	// extractor cannot save this one.
	input := []byte("PK\x03\x04 not actually a zip")

	res, err := svc.DecodeDocx(context.Background(), input, models.ConversionOptions{})
	require.Error(t, err)

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, models.KindDocxToHTML, chainErr.Kind)
	assert.Len(t, chainErr.Attempts, 3)
	assert.False(t, chainErr.NoFallback)

	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Len(t, res.ContentHash, 64)
}

func TestEncodeHTML_Success(t *testing.T) {
	t.Parallel()

	docx := []byte("PK\x03\x04 encoded document")
	svc := newTestService(t, testConfig(t), succeedWith(docx))

	res, err := svc.EncodeHTML(context.Background(), "<h1>Quarterly Report</h1>", models.ConversionOptions{Filename: "report"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, docx, res.Data)
	assert.Equal(t, EngineOfficeService, res.Metadata.Engine)
	assert.Equal(t, contentTypeDocx, res.Metadata.ContentType)
	assert.Contains(t, res.Metadata.Disposition, `filename="report.docx"`)
}

func TestEncodeHTML_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, testConfig(t), succeedWith([]byte("PK")))

	_, err := svc.EncodeHTML(context.Background(), "   \n\t", models.ConversionOptions{})
	assert.ErrorIs(t, err, ErrEmptyHTML)
}

func TestEncodeHTML_NoFallback(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, testConfig(t), alwaysFail("office service down"))

	res, err := svc.EncodeHTML(context.Background(), "<p>body</p>", models.ConversionOptions{})
	require.Error(t, err)

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.True(t, chainErr.NoFallback)
	assert.Len(t, chainErr.Attempts, 1)
	assert.Contains(t, err.Error(), "no fallback rendition exists")

	require.NotNil(t, res)
	assert.False(t, res.Success)
}

func TestDecodeStored(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	svc := newTestService(t, cfg, alwaysFail("office service unreachable"))
	ctx := context.Background()

	stored := fixtureDocx(t, "Stored Document", "Fetched from the artifact store.")
	seedStoredDocument(t, cfg.ArtifactDir, "stored.docx", stored)

	res, err := svc.DecodeStored(ctx, "uploads/stored.docx", models.ConversionOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, string(res.Data), "Fetched from the artifact store.")

	// Replays hit the long-tier cache entry.
	again, err := svc.DecodeStored(ctx, "uploads/stored.docx", models.ConversionOptions{})
	require.NoError(t, err)
	assert.True(t, again.Cached)

	_, err = svc.DecodeStored(ctx, "uploads/absent.docx", models.ConversionOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch stored document")
}

func TestInvalidateCache(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, testConfig(t), succeedWith([]byte("<p>fresh</p>")))
	ctx := context.Background()
	input := []byte("PK\x03\x04 cached once")

	_, err := svc.DecodeDocx(ctx, input, models.ConversionOptions{})
	require.NoError(t, err)

	cleared, err := svc.InvalidateCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)

	res, err := svc.DecodeDocx(ctx, input, models.ConversionOptions{})
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestService_Health(t *testing.T) {
	t.Parallel()

	t.Run("office reachable", func(t *testing.T) {
		t.Parallel()

		office := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer office.Close()

		cfg := testConfig(t)
		cfg.OfficeServiceURL = office.URL
		svc := newTestService(t, cfg, succeedWith([]byte("x")))

		h := svc.Health(context.Background())
		assert.Equal(t, "ok", h.Status)
		assert.True(t, h.OfficeService)
		assert.False(t, h.SofficeDirect)
		assert.Equal(t, "memory", h.Cache.Backend)
		assert.Equal(t, 2, h.Pool.TotalWorkers)
		assert.Equal(t, 0, h.ActiveBatches)
	})

	t.Run("office unreachable degrades", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(t, testConfig(t), succeedWith([]byte("x")))

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		h := svc.Health(ctx)
		assert.Equal(t, "degraded", h.Status)
		assert.False(t, h.OfficeService)
	})
}

func TestVisibleTextLen(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5, visibleTextLen([]byte("<p>hello</p>")))
	assert.Equal(t, 0, visibleTextLen([]byte("<div><span></span></div>")))
	assert.Equal(t, 4, visibleTextLen([]byte("a b\nc\td")))
}

func TestAttachmentName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "document.docx", attachmentName(models.ConversionOptions{}))
	assert.Equal(t, "report.docx", attachmentName(models.ConversionOptions{Filename: "report"}))
	assert.Equal(t, "Annual.DOCX", attachmentName(models.ConversionOptions{Filename: "Annual.DOCX"}))
	assert.Equal(t, "notes.docx", attachmentName(models.ConversionOptions{Filename: "  notes.docx  "}))

	// Traversal-shaped names flatten to their base.
	assert.Equal(t, "evil.docx", attachmentName(models.ConversionOptions{Filename: "../../evil"}))
	assert.Equal(t, "evil.docx", attachmentName(models.ConversionOptions{Filename: `..\..\evil.docx`}))
	assert.Equal(t, "inner.docx", attachmentName(models.ConversionOptions{Filename: "reports/2024/inner"}))
	assert.Equal(t, "document.docx", attachmentName(models.ConversionOptions{Filename: "../.."}))
	assert.Equal(t, "document.docx", attachmentName(models.ConversionOptions{Filename: "/"}))
}

func TestEnhanceHTML(t *testing.T) {
	t.Parallel()

	out := enhanceHTML([]byte("<html><head></head><body><p>hi</p></body></html>"))
	assert.Contains(t, string(out), `<meta charset="UTF-8">`)
	assert.Contains(t, string(out), ".resume-container")
	assert.Contains(t, string(out), "<p>hi</p>")

	// Fragments without a head element pass through untouched.
	fragment := []byte("<p>just a paragraph</p>")
	assert.Equal(t, fragment, enhanceHTML(fragment))
}

func TestResolveTemplate(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.TemplateDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.TemplateDir, "letterhead.dotx"), []byte("x"), 0o600))

	svc := newTestService(t, cfg, succeedWith([]byte("PK")))

	assert.Equal(t, "letterhead", svc.resolveTemplate("letterhead"))
	assert.Equal(t, "", svc.resolveTemplate("missing"), "absent templates degrade to the default")
	assert.Equal(t, "", svc.resolveTemplate("default"))
	assert.Equal(t, "", svc.resolveTemplate(""))

	cfg.TemplateDir = ""
	assert.Equal(t, "letterhead", svc.resolveTemplate("letterhead"), "no local template dir, name passes through")
}
