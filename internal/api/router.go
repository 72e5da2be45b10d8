package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/LJTian/dwscraper/internal/collector"
	"github.com/LJTian/dwscraper/internal/dataset"
	"github.com/LJTian/dwscraper/internal/processor"
	"github.com/LJTian/dwscraper/internal/storage"
	"github.com/gin-gonic/gin"
)

// Archive 接口层用到的存储能力，*storage.Store 满足
type Archive interface {
	ListArticles(ctx context.Context, q storage.ArticleQuery) ([]storage.Article, error)
	ListCategories(ctx context.Context) ([]string, error)
	ListRuns(ctx context.Context, limit int) ([]storage.Run, error)
	GetRun(ctx context.Context, id string) (*storage.Run, bool)
	SaveRun(ctx context.Context, r *storage.Run) error
	SaveBatch(source string, items []processor.ProcessedArticle) error
}

// Scraper 按需抓取，*collector.Scraper 满足
type Scraper interface {
	Scrape(ctx context.Context, start, end string) (*dataset.Table, error)
}

const (
	source        = "dw"
	archiveLayout = "2006-01-02"
)

type Server struct {
	store     Archive
	scraper   Scraper
	processor *processor.SimpleProcessor

	// 与调度器共用：同一时间只允许一路抓取访问站点
	scrapeMu *sync.Mutex
}

// NewServer 创建接口服务；mu 为 nil 时使用独立的锁
func NewServer(store Archive, scraper Scraper, mu *sync.Mutex) *Server {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &Server{
		store:     store,
		scraper:   scraper,
		processor: processor.NewSimpleProcessor(),
		scrapeMu:  mu,
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/articles", s.listArticles)
		v1.GET("/categories", s.listCategories)
		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:id", s.getRun)
		v1.POST("/scrape", s.scrape)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

func validDate(layout, v string) bool {
	if v == "" {
		return true
	}
	_, err := time.Parse(layout, v)
	return err == nil
}

func (s *Server) listArticles(c *gin.Context) {
	q := storage.ArticleQuery{
		From:     c.Query("from"),
		To:       c.Query("to"),
		Category: c.Query("category"),
		Region:   c.Query("region"),
		Limit:    queryLimit(c, 50),
	}
	if !validDate(archiveLayout, q.From) || !validDate(archiveLayout, q.To) {
		fail(c, http.StatusBadRequest, "invalid_date", "from/to must be yyyy-mm-dd")
		return
	}

	items, err := s.store.ListArticles(c.Request.Context(), q)
	if err != nil {
		log.Printf("list articles error: %v", err)
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, items)
}

func (s *Server) listCategories(c *gin.Context) {
	cats, err := s.store.ListCategories(c.Request.Context())
	if err != nil {
		log.Printf("list categories error: %v", err)
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, cats)
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.store.ListRuns(c.Request.Context(), queryLimit(c, 20))
	if err != nil {
		log.Printf("list runs error: %v", err)
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, runs)
}

func (s *Server) getRun(c *gin.Context) {
	run, found := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, "not_found", "run not found")
		return
	}
	ok(c, run)
}

// scrape 同步执行一次抓取；save=true 时同时入库并记录 Run
func (s *Server) scrape(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" || !validDate(collector.DateLayout, from) || !validDate(collector.DateLayout, to) {
		fail(c, http.StatusBadRequest, "invalid_date", collector.ErrMalformedDateRange.Error())
		return
	}
	save := c.Query("save") == "true"

	if !s.scrapeMu.TryLock() {
		fail(c, http.StatusConflict, "busy", "a scrape is already running")
		return
	}
	defer s.scrapeMu.Unlock()

	ctx := c.Request.Context()
	var run *storage.Run
	if save {
		run = storage.NewRun("api", from, to)
		if err := s.store.SaveRun(ctx, run); err != nil {
			log.Printf("record run error: %v", err)
		}
	}

	table, err := s.scraper.Scrape(ctx, from, to)
	if err == nil && save {
		err = s.store.SaveBatch(source, s.processor.Process(table, from, to))
	}
	if run != nil {
		rows := 0
		if table != nil {
			rows = table.Len()
		}
		run.Finish(rows, err)
		if err := s.store.SaveRun(context.Background(), run); err != nil {
			log.Printf("record run error: %v", err)
		}
	}

	switch {
	case errors.Is(err, collector.ErrMalformedDateRange):
		fail(c, http.StatusUnprocessableEntity, "empty_result", err.Error())
		return
	case err != nil:
		log.Printf("scrape %s - %s error: %v", from, to, err)
		fail(c, http.StatusBadGateway, "fetch_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"rows":    table.Len(),
		"data":    table,
	})
}

// BasicAuth 为整个站点增加一个简单的 Basic Auth 访问密码。
// /health 不做认证，便于健康检查。
func BasicAuth(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
