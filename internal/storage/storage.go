package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/LJTian/dwscraper/internal/processor"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Channel 描述一个数据源，目前只有 dw
type Channel struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Code    string `gorm:"size:64;uniqueIndex" json:"code"`
	Name    string `gorm:"size:128" json:"name"`
	BaseURL string `gorm:"size:256" json:"baseUrl"`
	Status  string `gorm:"size:32;index" json:"status"` // active / disabled

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Article 归档的文章，一个 URL 一行；Text / Category / Region 为空表示抓取不到
type Article struct {
	ID          string            `gorm:"primaryKey;size:40" json:"id"`
	Source      string            `gorm:"size:64;index" json:"source"`
	Date        string            `gorm:"size:32" json:"date"`
	PublishedOn *time.Time        `gorm:"type:date;index" json:"publishedOn"`
	Title       string            `gorm:"size:512" json:"title"`
	URL         string            `gorm:"size:1024;uniqueIndex" json:"url"`
	Teaser      string            `gorm:"size:600" json:"teaser"`
	Text        *string           `gorm:"type:text" json:"text"`
	Category    *string           `gorm:"size:128;index" json:"category"`
	Region      *string           `gorm:"size:128;index" json:"region"`
	ExtraData   datatypes.JSONMap `gorm:"type:jsonb" json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Channel{}, &Article{}, &Run{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("warn: redis ping failed: %v", err)
	}

	return &Store{DB: db, Redis: rdb}, nil
}

// EnsureChannel 确保某个渠道存在
func (s *Store) EnsureChannel(code, name, baseURL string) (*Channel, error) {
	ch := &Channel{}
	if err := s.DB.Where("code = ?", code).First(ch).Error; err == nil {
		return ch, nil
	}

	ch = &Channel{
		Code:    code,
		Name:    name,
		BaseURL: baseURL,
		Status:  "active",
	}
	if err := s.DB.Create(ch).Error; err != nil {
		return nil, err
	}
	return ch, nil
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

func toValidUTF8Ptr(s *string) *string {
	if s == nil {
		return nil
	}
	v := toValidUTF8(*s)
	return &v
}

// truncateRunesDB 按 rune 数截断字符串，确保不会超过数据库字段长度（例如 varchar(600)）。
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

func truncateRunesDBPtr(s *string, limit int) *string {
	if s == nil {
		return nil
	}
	v := truncateRunesDB(*s, limit)
	return &v
}

// toModel 把处理后的记录转成表结构，顺带做编码与长度保护
func toModel(source string, it processor.ProcessedArticle) *Article {
	return &Article{
		ID:          it.ID,
		Source:      source,
		Date:        truncateRunesDB(toValidUTF8(it.Date), 32),
		PublishedOn: it.PublishedOn,
		Title:       truncateRunesDB(toValidUTF8(it.Title), 512),
		URL:         it.URL,
		Teaser:      truncateRunesDB(toValidUTF8(it.Teaser), 600),
		Text:        toValidUTF8Ptr(it.Text),
		Category:    truncateRunesDBPtr(toValidUTF8Ptr(it.Category), 128),
		Region:      truncateRunesDBPtr(toValidUTF8Ptr(it.Region), 128),
		ExtraData: datatypes.JSONMap{
			"window_from": it.WindowFrom,
			"window_to":   it.WindowTo,
		},
	}
}

// SaveBatch 保存一批文章，以 URL 作为幂等键；已存在的更新正文等字段
func (s *Store) SaveBatch(source string, items []processor.ProcessedArticle) error {
	for _, it := range items {
		n := toModel(source, it)

		if err := s.DB.Where("url = ?", it.URL).FirstOrCreate(n).Error; err != nil {
			return err
		}
		if err := s.DB.Model(n).Updates(map[string]any{
			"title":        n.Title,
			"teaser":       n.Teaser,
			"text":         n.Text,
			"category":     n.Category,
			"region":       n.Region,
			"date":         n.Date,
			"published_on": n.PublishedOn,
		}).Error; err != nil {
			log.Printf("update article %s error: %v", it.URL, err)
		}
	}

	// 不主动删缓存，依赖短 TTL 自然过期
	return nil
}

// ArticleQuery 归档查询条件；From / To 为 2006-01-02 格式，可为空
type ArticleQuery struct {
	From     string
	To       string
	Category string
	Region   string
	Limit    int
}

const listCacheTTL = 5 * time.Minute

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 50
	}
	return limit
}

func (q ArticleQuery) cacheKey() string {
	return fmt.Sprintf("articles:list:%s:%s:%s:%s:%d", q.From, q.To, q.Category, q.Region, normalizeLimit(q.Limit))
}

// ListArticles 按发布日期倒序返回归档文章，并使用 Redis 做简单缓存
func (s *Store) ListArticles(ctx context.Context, q ArticleQuery) ([]Article, error) {
	q.Limit = normalizeLimit(q.Limit)
	cacheKey := q.cacheKey()

	var list []Article
	if s.getCached(ctx, cacheKey, &list) {
		return list, nil
	}

	db := s.DB.WithContext(ctx).Model(&Article{})
	if q.From != "" {
		db = db.Where("published_on >= ?", q.From)
	}
	if q.To != "" {
		db = db.Where("published_on <= ?", q.To)
	}
	if q.Category != "" {
		db = db.Where("category = ?", q.Category)
	}
	if q.Region != "" {
		db = db.Where("region = ?", q.Region)
	}
	if err := db.Order("published_on DESC").Order("created_at DESC").Limit(q.Limit).Find(&list).Error; err != nil {
		return nil, err
	}

	if len(list) > 0 {
		s.setCached(ctx, cacheKey, list)
	}
	return list, nil
}

// ListCategories 返回归档中出现过的分类（去重、升序）
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	const cacheKey = "articles:categories"

	var cats []string
	if s.getCached(ctx, cacheKey, &cats) {
		return cats, nil
	}

	if err := s.DB.WithContext(ctx).Model(&Article{}).
		Where("category IS NOT NULL AND category <> ''").
		Distinct().Order("category ASC").
		Pluck("category", &cats).Error; err != nil {
		return nil, err
	}

	if len(cats) > 0 {
		s.setCached(ctx, cacheKey, cats)
	}
	return cats, nil
}

func (s *Store) getCached(ctx context.Context, key string, out any) bool {
	if s.Redis == nil {
		return false
	}
	bs, err := s.Redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(bs, out) == nil
}

func (s *Store) setCached(ctx context.Context, key string, v any) {
	if s.Redis == nil {
		return
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.Redis.Set(ctx, key, bs, listCacheTTL).Err()
}
