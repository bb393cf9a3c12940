package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfdesk/internal/ai"
	"github.com/local/pdfdesk/internal/archive"
	"github.com/local/pdfdesk/internal/config"
	"github.com/local/pdfdesk/internal/filetype"
	"github.com/local/pdfdesk/internal/limiter"
	"github.com/local/pdfdesk/internal/pdfdoc"
	"github.com/local/pdfdesk/internal/pdftest"
	"github.com/local/pdfdesk/internal/recompose"
	"github.com/local/pdfdesk/internal/statuscheck"
	"github.com/local/pdfdesk/internal/storage"
)

type part struct {
	field, name string
	data        []byte
}

func multipartBody(t *testing.T, parts []part, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

type fakeAI struct {
	available bool
	err       error
	got       []ai.Document
}

func (f *fakeAI) Available() bool { return f.available }

func (f *fakeAI) Summarize(_ context.Context, doc ai.Document) (ai.Summary, error) {
	f.got = append(f.got, doc)
	if f.err != nil {
		return ai.Summary{}, f.err
	}
	return ai.Summary{Summary: "short version", Provider: "openai", Model: "m"}, nil
}

func (f *fakeAI) Compare(_ context.Context, a, b ai.Document) (ai.Comparison, error) {
	f.got = append(f.got, a, b)
	if f.err != nil {
		return ai.Comparison{}, f.err
	}
	return ai.Comparison{Comparison: "they differ", Provider: "anthropic", Model: "m"}, nil
}

type fakeStatus struct{}

func (fakeStatus) Summary(context.Context) statuscheck.Summary {
	return statuscheck.Summary{Redis: statuscheck.Status{OK: true, Message: "Connected"}}
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{MaxUploadBytes: 8 << 20, MaxFileBytes: 4 << 20, MaxFiles: 5}
}

func newTestServer(t *testing.T, assistant Assistant) http.Handler {
	t.Helper()
	engine := recompose.New(pdfdoc.Codec{}, archive.NewPacker, recompose.Options{Types: filetype.New()})
	return New(testConfig(), Dependencies{
		Engine:   engine,
		AI:       assistant,
		Fetcher:  storage.NewFetcher(storage.Options{MaxBytes: 4 << 20}),
		Status:   fakeStatus{},
		Types:    filetype.New(),
		Inflight: limiter.NewInflight(4),
		Clients:  limiter.NewClientLimiter(1000, 1000),
	}).Handler()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decodeData(t *testing.T, env envelope) []byte {
	t.Helper()
	uri, ok := env.Data.(string)
	require.True(t, ok, "data must be a data uri")
	_, data, err := recompose.DecodeDataURI(uri)
	require.NoError(t, err)
	return data
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestStatus(t *testing.T) {
	h := newTestServer(t, nil)
	rec, env := do(t, h, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Contains(t, rec.Body.String(), `"redis":{"ok":true,"message":"Connected"}`)
}

func TestMergeMultipart(t *testing.T) {
	h := newTestServer(t, nil)
	body, ct := multipartBody(t, []part{
		{"files", "a.pdf", pdftest.Build("A", 2)},
		{"files", "b.pdf", pdftest.Build("B", 1)},
	}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/merge", body)
	req.Header.Set("Content-Type", ct)

	rec, env := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)
	assert.Equal(t, "merged.pdf", env.Filename)
	assert.Equal(t, 3, env.Pages)

	texts, err := pdftest.PageTexts(decodeData(t, env))
	require.NoError(t, err)
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], pdftest.Marker("A", 1))
	assert.Contains(t, texts[1], pdftest.Marker("A", 2))
	assert.Contains(t, texts[2], pdftest.Marker("B", 1))
}

func TestMergeBinary(t *testing.T) {
	h := newTestServer(t, nil)
	body, ct := multipartBody(t, []part{
		{"files", "a.pdf", pdftest.Build("A", 1)},
		{"files", "b.pdf", pdftest.Build("B", 1)},
	}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/merge?format=binary", body)
	req.Header.Set("Content-Type", ct)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="merged.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "2", rec.Header().Get("X-Page-Count"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestMergeJSONDataURIs(t *testing.T) {
	h := newTestServer(t, nil)
	payload := map[string]any{"sources": []map[string]string{
		{"name": "x.pdf", "url": recompose.EncodeDataURI("application/pdf", pdftest.Build("X", 1))},
		{"name": "y.pdf", "url": recompose.EncodeDataURI("application/pdf", pdftest.Build("Y", 2))},
	}}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/merge", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	rec, env := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, env.Pages)
}

func TestMergeErrors(t *testing.T) {
	h := newTestServer(t, nil)

	cases := []struct {
		name   string
		parts  []part
		status int
		kind   string
		msg    string
	}{
		{"no files", nil, http.StatusBadRequest, "input_missing", "No files uploaded."},
		{"one file", []part{{"files", "a.pdf", pdftest.Build("A", 1)}}, http.StatusBadRequest, "input_missing",
			"Please upload at least two PDF files to merge."},
		{"corrupt", []part{{"files", "a.pdf", pdftest.Build("A", 1)}, {"files", "bad.pdf", pdftest.Corrupt}},
			http.StatusUnprocessableEntity, "unreadable_source", `Failed to process the file "bad.pdf"`},
		{"not a pdf", []part{{"files", "a.pdf", pdftest.Build("A", 1)}, {"files", "notes.txt", []byte("plain text")}},
			http.StatusUnprocessableEntity, "unreadable_source", `Invalid file type for "notes.txt"`},
		{"empty part", []part{{"files", "a.pdf", pdftest.Build("A", 1)}, {"files", "empty.pdf", nil}},
			http.StatusBadRequest, "input_missing", `The file "empty.pdf" is empty.`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartBody(t, tc.parts, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/merge", body)
			req.Header.Set("Content-Type", ct)
			rec, env := do(t, h, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tc.kind, env.Kind)
			assert.Contains(t, env.Error, tc.msg)
			assert.Nil(t, env.Data)
		})
	}
}

func TestMergeTooManyFiles(t *testing.T) {
	h := newTestServer(t, nil)
	var parts []part
	for i := 0; i < 6; i++ {
		parts = append(parts, part{"files", fmt.Sprintf("%d.pdf", i), pdftest.Build("P", 1)})
	}
	body, ct := multipartBody(t, parts, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/merge", body)
	req.Header.Set("Content-Type", ct)
	rec, env := do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", env.Kind)
}

func TestUploadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadBytes = 512
	engine := recompose.New(pdfdoc.Codec{}, archive.NewPacker, recompose.Options{})
	h := New(cfg, Dependencies{Engine: engine}).Handler()

	body, ct := multipartBody(t, []part{
		{"files", "a.pdf", bytes.Repeat([]byte("x"), 2048)},
		{"files", "b.pdf", bytes.Repeat([]byte("y"), 2048)},
	}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/merge", body)
	req.Header.Set("Content-Type", ct)
	rec, env := do(t, h, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "too_large", env.Kind)
}

func TestSplitMultipart(t *testing.T) {
	h := newTestServer(t, nil)
	body, ct := multipartBody(t, []part{{"file", "report.pdf", pdftest.Build("R", 3)}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/split", body)
	req.Header.Set("Content-Type", ct)

	rec, env := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "report_pages.zip", env.Filename)
	assert.Equal(t, []string{"page_1.pdf", "page_2.pdf", "page_3.pdf"}, env.Entries)

	entries, err := archive.Read(decodeData(t, env))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		texts, err := pdftest.PageTexts(e.Data)
		require.NoError(t, err)
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], pdftest.Marker("R", i+1))
	}
}

func TestSplitRanges(t *testing.T) {
	h := newTestServer(t, nil)
	body, ct := multipartBody(t, []part{{"file", "book.pdf", pdftest.Build("B", 5)}}, map[string]string{"ranges": "1-2, 3-5"})
	req := httptest.NewRequest(http.MethodPost, "/api/split", body)
	req.Header.Set("Content-Type", ct)

	rec, env := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "book_split.zip", env.Filename)
	assert.Equal(t, []string{"split_1-2.pdf", "split_3-5.pdf"}, env.Entries)
}

func TestSplitErrors(t *testing.T) {
	h := newTestServer(t, nil)

	cases := []struct {
		name   string
		parts  []part
		ranges map[string]string
		status int
		kind   string
	}{
		{"missing", nil, nil, http.StatusBadRequest, "input_missing"},
		{"single page", []part{{"file", "one.pdf", pdftest.Build("O", 1)}}, nil, http.StatusUnprocessableEntity, "degenerate_operation"},
		{"bad range", []part{{"file", "b.pdf", pdftest.Build("B", 3)}}, map[string]string{"ranges": "2-9"}, http.StatusBadRequest, "invalid_range"},
		{"bad syntax", []part{{"file", "b.pdf", pdftest.Build("B", 3)}}, map[string]string{"ranges": "a-b"}, http.StatusBadRequest, "invalid_range"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartBody(t, tc.parts, tc.ranges)
			req := httptest.NewRequest(http.MethodPost, "/api/split", body)
			req.Header.Set("Content-Type", ct)
			rec, env := do(t, h, req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.kind, env.Kind)
		})
	}
}

func TestNotMultipart(t *testing.T) {
	h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/split", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain")
	rec, env := do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", env.Kind)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, nil)
	for _, path := range []string{"/api/merge", "/api/split", "/api/summarize", "/api/compare"} {
		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", method, path)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummarize(t *testing.T) {
	assistant := &fakeAI{available: true}
	h := newTestServer(t, assistant)
	body, ct := multipartBody(t, []part{{"file", "doc.pdf", pdftest.Build("D", 1)}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/summarize", body)
	req.Header.Set("Content-Type", ct)

	rec, _ := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Success bool       `json:"success"`
		Data    ai.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, "short version", out.Data.Summary)
	require.Len(t, assistant.got, 1)
	assert.Equal(t, "doc.pdf", assistant.got[0].Name)
}

func TestCompareFields(t *testing.T) {
	assistant := &fakeAI{available: true}
	h := newTestServer(t, assistant)
	body, ct := multipartBody(t, []part{
		{"file1", "v1.pdf", pdftest.Build("V1", 1)},
		{"file2", "v2.pdf", pdftest.Build("V2", 1)},
	}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/compare", body)
	req.Header.Set("Content-Type", ct)

	rec, _ := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"comparison":"they differ"`)
	require.Len(t, assistant.got, 2)
	assert.Equal(t, "v1.pdf", assistant.got[0].Name)
	assert.Equal(t, "v2.pdf", assistant.got[1].Name)
}

func TestCompareNeedsTwo(t *testing.T) {
	h := newTestServer(t, &fakeAI{available: true})
	body, ct := multipartBody(t, []part{{"file1", "v1.pdf", pdftest.Build("V1", 1)}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/compare", body)
	req.Header.Set("Content-Type", ct)
	rec, env := do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please upload two PDF files to compare.", env.Error)
}

func TestAIErrors(t *testing.T) {
	cases := []struct {
		name   string
		ai     *fakeAI
		status int
		kind   string
	}{
		{"not configured", &fakeAI{available: false}, http.StatusServiceUnavailable, "ai_unavailable"},
		{"unavailable", &fakeAI{available: true, err: fmt.Errorf("%w: boom", ai.ErrUnavailable)}, http.StatusServiceUnavailable, "ai_unavailable"},
		{"empty", &fakeAI{available: true, err: ai.ErrEmptyOutput}, http.StatusBadGateway, "empty_output"},
		{"no text", &fakeAI{available: true, err: &ai.DocumentError{Name: "scan.pdf", Err: ai.ErrNoText}}, http.StatusUnprocessableEntity, "no_text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(t, tc.ai)
			body, ct := multipartBody(t, []part{{"file", "scan.pdf", pdftest.Build("S", 1)}}, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/summarize", body)
			req.Header.Set("Content-Type", ct)
			rec, env := do(t, h, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.kind, env.Kind)
		})
	}
}

func TestRateLimit(t *testing.T) {
	engine := recompose.New(pdfdoc.Codec{}, archive.NewPacker, recompose.Options{})
	h := New(testConfig(), Dependencies{Engine: engine, Clients: limiter.NewClientLimiter(0.001, 1)}).Handler()

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/merge", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		return req
	}
	rec, _ := do(t, h, newReq())
	assert.Equal(t, http.StatusBadRequest, rec.Code, "first request reaches the handler")
	rec, env := do(t, h, newReq())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", env.Kind)
}

func TestBusy(t *testing.T) {
	engine := recompose.New(pdfdoc.Codec{}, archive.NewPacker, recompose.Options{})
	in := limiter.NewInflight(1)
	release, ok := in.Allow("merge")
	require.True(t, ok)
	defer release()

	h := New(testConfig(), Dependencies{Engine: engine, Inflight: in}).Handler()
	req := httptest.NewRequest(http.MethodPost, "/api/merge", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec, env := do(t, h, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "busy", env.Kind)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/merge", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestJSONUnsupportedRef(t *testing.T) {
	h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/split", strings.NewReader(`{"source":{"name":"a.pdf","url":"ftp://x/a.pdf"}}`))
	req.Header.Set("Content-Type", "application/json")
	rec, env := do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, `"a.pdf"`)
}

func TestFailureFallback(t *testing.T) {
	status, kind, msg := failure(io.ErrUnexpectedEOF)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", kind)
	assert.NotContains(t, msg, "EOF")
}
