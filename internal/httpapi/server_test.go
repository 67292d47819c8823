package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caretext/answerd/internal/chunkstore"
	"github.com/caretext/answerd/internal/pipeline"
)

type fakeAnswerer struct {
	resp *pipeline.AnswerResponse
	err  error
}

func (f *fakeAnswerer) Answer(_ context.Context, _ string) (*pipeline.AnswerResponse, error) {
	return f.resp, f.err
}

type fakeIngester struct {
	got []chunkstore.Chunk
	err error
}

func (f *fakeIngester) AddChunks(_ context.Context, chunks []chunkstore.Chunk) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got = chunks
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
	}
	return ids, nil
}

func newTestServer(t *testing.T, answerer Answerer, ingester Ingester) *Server {
	t.Helper()
	s, err := NewServer(answerer, ingester, zap.NewNop(), nil)
	require.NoError(t, err)
	return s
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(nil, nil, zap.NewNop(), nil)
	assert.Error(t, err)

	_, err = NewServer(&fakeAnswerer{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &fakeAnswerer{}, nil)

	rec := doRequest(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleQuery(t *testing.T) {
	answer := &pipeline.AnswerResponse{
		AnswerText: "door-to-balloon time under 90 minutes",
		Sources:    []string{"Cardiac Protocols.pdf"},
		Confidence: 0.8,
		Intent:     pipeline.IntentProtocol,
		Warnings:   []string{},
	}
	s := newTestServer(t, &fakeAnswerer{resp: answer}, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/query", `{"query":"stemi timing"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got pipeline.AnswerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, answer.AnswerText, got.AnswerText)
	assert.Equal(t, pipeline.IntentProtocol, got.Intent)

	// optional fields stay absent, not null-broken, for old consumers
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	_, present := raw["highlighted_sources"]
	assert.False(t, present)
}

func TestHandleQueryMissingField(t *testing.T) {
	s := newTestServer(t, &fakeAnswerer{}, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/query", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/query", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryStoreUnavailable(t *testing.T) {
	s := newTestServer(t, &fakeAnswerer{err: pipeline.ErrRetrievalFailed}, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/query", `{"query":"q"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleIngest(t *testing.T) {
	ing := &fakeIngester{}
	s := newTestServer(t, &fakeAnswerer{}, ing)

	body := `{"chunks":[{"id":"c1","document_id":"d1","content":"text"}]}`
	rec := doRequest(s, http.MethodPost, "/api/v1/chunks", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"c1"}, resp.IDs)
	require.Len(t, ing.got, 1)
	assert.Equal(t, "d1", ing.got[0].DocumentID)
}

func TestHandleIngestBadInput(t *testing.T) {
	s := newTestServer(t, &fakeAnswerer{}, &fakeIngester{err: chunkstore.ErrDimensionMismatch})

	rec := doRequest(s, http.MethodPost, "/api/v1/chunks", `{"chunks":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/chunks", `{"chunks":[{"id":"x","content":"y"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngestDisabledWithoutIngester(t *testing.T) {
	s := newTestServer(t, &fakeAnswerer{}, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/chunks", `{"chunks":[{"id":"x"}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleIngestInternalError(t *testing.T) {
	s := newTestServer(t, &fakeAnswerer{}, &fakeIngester{err: errors.New("disk full")})

	rec := doRequest(s, http.MethodPost, "/api/v1/chunks", `{"chunks":[{"id":"x","content":"y"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
