package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/LJTian/dwscraper/internal/collector"
	"github.com/LJTian/dwscraper/internal/dataset"
	"github.com/samber/lo"
)

// teaserMaxRunes 列表摘要入库前的长度上限
const teaserMaxRunes = 500

// ProcessedArticle 是写入存储层前的统一结构
type ProcessedArticle struct {
	ID          string
	Date        string
	PublishedOn *time.Time
	Title       string
	URL         string
	Teaser      string
	Text        *string
	Category    *string
	Region      *string
	// 本条记录来自哪个搜索时间段
	WindowFrom string
	WindowTo   string
}

// SimpleProcessor 做最基础的数据清洗与 ID 生成
type SimpleProcessor struct{}

func NewSimpleProcessor() *SimpleProcessor {
	return &SimpleProcessor{}
}

// Process 把抓取结果转成入库结构；同一批内 URL 重复的只保留第一条
func (p *SimpleProcessor) Process(table *dataset.Table, from, to string) []ProcessedArticle {
	if table == nil {
		return nil
	}
	rows := lo.UniqBy(table.Rows(), func(it dataset.Article) string {
		return it.URL
	})

	return lo.Map(rows, func(it dataset.Article, _ int) ProcessedArticle {
		return ProcessedArticle{
			ID:          hashURL(it.URL),
			Date:        strings.TrimSpace(it.Date),
			PublishedOn: parseDate(it.Date),
			Title:       collapseSpaces(it.Title),
			URL:         it.URL,
			Teaser:      truncateRunes(collapseSpaces(it.Teaser), teaserMaxRunes),
			Text:        trimPtr(it.Text),
			Category:    trimPtr(it.Category),
			Region:      trimPtr(it.Region),
			WindowFrom:  from,
			WindowTo:    to,
		}
	})
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// parseDate 列表日期一般是 dd.mm.yyyy，解析不了就留空
func parseDate(s string) *time.Time {
	t, err := time.Parse(collector.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// truncateRunes 按 rune 截断并追加省略号
func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit]) + "…"
}
