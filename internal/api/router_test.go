package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/LJTian/dwscraper/internal/collector"
	"github.com/LJTian/dwscraper/internal/dataset"
	"github.com/LJTian/dwscraper/internal/processor"
	"github.com/LJTian/dwscraper/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchive struct {
	mu       sync.Mutex
	query    storage.ArticleQuery
	articles []storage.Article
	cats     []string
	runs     []storage.Run
	saved    []processor.ProcessedArticle
	listErr  error
}

func (a *fakeArchive) ListArticles(_ context.Context, q storage.ArticleQuery) ([]storage.Article, error) {
	a.query = q
	return a.articles, a.listErr
}

func (a *fakeArchive) ListCategories(context.Context) ([]string, error) {
	return a.cats, a.listErr
}

func (a *fakeArchive) ListRuns(_ context.Context, limit int) ([]storage.Run, error) {
	if limit < len(a.runs) {
		return a.runs[:limit], nil
	}
	return a.runs, nil
}

func (a *fakeArchive) GetRun(_ context.Context, id string) (*storage.Run, bool) {
	for i := range a.runs {
		if a.runs[i].ID == id {
			return &a.runs[i], true
		}
	}
	return nil, false
}

func (a *fakeArchive) SaveRun(_ context.Context, r *storage.Run) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, *r)
	return nil
}

func (a *fakeArchive) SaveBatch(_ string, items []processor.ProcessedArticle) error {
	a.saved = append(a.saved, items...)
	return nil
}

type fakeScraper struct {
	table   *dataset.Table
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeScraper) Scrape(context.Context, string, string) (*dataset.Table, error) {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return f.table, f.err
}

func oneRow() *dataset.Table {
	t := dataset.NewTable()
	t.Append(dataset.Article{Date: "01.01.2024", Title: "t", URL: "https://www.dw.com/en/t/a-1", Teaser: "x"})
	return t
}

func newRouter(a Archive, s Scraper) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewServer(a, s, nil).RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Rows    int             `json:"rows"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestHealth(t *testing.T) {
	w := do(newRouter(&fakeArchive{}, &fakeScraper{}), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListArticles(t *testing.T) {
	a := &fakeArchive{articles: []storage.Article{{ID: "1", Title: "t", URL: "u"}}}
	r := newRouter(a, &fakeScraper{})

	w := do(r, http.MethodGet, "/api/v1/articles?from=2024-01-01&to=2024-01-31&category=Science&limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, storage.ArticleQuery{From: "2024-01-01", To: "2024-01-31", Category: "Science", Limit: 5}, a.query)

	var items []storage.Article
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &items))
	assert.Len(t, items, 1)

	w = do(r, http.MethodGet, "/api/v1/articles?limit=abc")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, a.query.Limit)
}

func TestListArticlesBadDate(t *testing.T) {
	w := do(newRouter(&fakeArchive{}, &fakeScraper{}), http.MethodGet, "/api/v1/articles?from=01.01.2024")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_date", decode(t, w).Code)
}

func TestListArticlesStoreError(t *testing.T) {
	w := do(newRouter(&fakeArchive{listErr: errors.New("db down")}, &fakeScraper{}), http.MethodGet, "/api/v1/articles")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", decode(t, w).Code)
}

func TestListCategoriesAndRuns(t *testing.T) {
	a := &fakeArchive{
		cats: []string{"Business", "Science"},
		runs: []storage.Run{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}
	r := newRouter(a, &fakeScraper{})

	w := do(r, http.MethodGet, "/api/v1/categories")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["Business","Science"]`, string(decode(t, w).Data))

	w = do(r, http.MethodGet, "/api/v1/runs?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	var runs []storage.Run
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &runs))
	assert.Len(t, runs, 2)

	w = do(r, http.MethodGet, "/api/v1/runs/b")
	require.Equal(t, http.StatusOK, w.Code)
	var run storage.Run
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &run))
	assert.Equal(t, "b", run.ID)

	w = do(r, http.MethodGet, "/api/v1/runs/zzz")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScrape(t *testing.T) {
	a := &fakeArchive{}
	r := newRouter(a, &fakeScraper{table: oneRow()})

	w := do(r, http.MethodPost, "/api/v1/scrape?from=01.01.2024&to=02.01.2024")
	require.Equal(t, http.StatusOK, w.Code)
	e := decode(t, w)
	assert.Equal(t, 1, e.Rows)

	var rows []dataset.Article
	require.NoError(t, json.Unmarshal(e.Data, &rows))
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Text)

	// 不带 save 时不入库
	assert.Empty(t, a.saved)
	assert.Empty(t, a.runs)
}

func TestScrapeSave(t *testing.T) {
	a := &fakeArchive{}
	r := newRouter(a, &fakeScraper{table: oneRow()})

	w := do(r, http.MethodPost, "/api/v1/scrape?from=01.01.2024&to=02.01.2024&save=true")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, a.saved, 1)
	require.Len(t, a.runs, 2)
	assert.Equal(t, storage.RunOK, a.runs[1].Status)
	assert.Equal(t, "api", a.runs[1].Trigger)
}

func TestScrapeErrors(t *testing.T) {
	cases := []struct {
		name    string
		target  string
		scraper *fakeScraper
		status  int
		code    string
	}{
		{"missing date", "/api/v1/scrape?from=01.01.2024", &fakeScraper{}, http.StatusBadRequest, "invalid_date"},
		{"wrong format", "/api/v1/scrape?from=2024-01-01&to=2024-01-02", &fakeScraper{}, http.StatusBadRequest, "invalid_date"},
		{"empty window", "/api/v1/scrape?from=01.01.2024&to=02.01.2024", &fakeScraper{table: dataset.NewTable(), err: collector.ErrMalformedDateRange}, http.StatusUnprocessableEntity, "empty_result"},
		{"fetch fault", "/api/v1/scrape?from=01.01.2024&to=02.01.2024", &fakeScraper{err: errors.New("collector: fetch: boom")}, http.StatusBadGateway, "fetch_failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(newRouter(&fakeArchive{}, tc.scraper), http.MethodPost, tc.target)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decode(t, w).Code)
		})
	}
}

func TestScrapeAlreadyRunning(t *testing.T) {
	s := &fakeScraper{table: oneRow(), started: make(chan struct{}), release: make(chan struct{})}
	r := newRouter(&fakeArchive{}, s)

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- do(r, http.MethodPost, "/api/v1/scrape?from=01.01.2024&to=02.01.2024")
	}()
	<-s.started

	w := do(r, http.MethodPost, "/api/v1/scrape?from=01.01.2024&to=02.01.2024")
	assert.Equal(t, http.StatusConflict, w.Code)

	close(s.release)
	assert.Equal(t, http.StatusOK, (<-done).Code)
}

func TestScrapeBlockedBySharedLock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var mu sync.Mutex
	r := gin.New()
	NewServer(&fakeArchive{}, &fakeScraper{table: oneRow()}, &mu).RegisterRoutes(r)

	// 定时任务持有锁时，按需抓取直接返回 409
	mu.Lock()
	w := do(r, http.MethodPost, "/api/v1/scrape?from=01.01.2024&to=02.01.2024")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "busy", decode(t, w).Code)

	mu.Unlock()
	w = do(r, http.MethodPost, "/api/v1/scrape?from=01.01.2024&to=02.01.2024")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBasicAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BasicAuth("admin", "secret"))
	NewServer(&fakeArchive{}, &fakeScraper{}, nil).RegisterRoutes(r)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/categories").Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
	req.SetBasicAuth("admin", "secret")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
