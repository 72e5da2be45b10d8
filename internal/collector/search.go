package collector

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/LJTian/dwscraper/internal/config"
	"github.com/PuerkitoBio/goquery"
)

// SearchLocator 负责 DW 搜索页：先探测命中总数，再按总数一次取回完整列表
type SearchLocator struct {
	fetch        documentFetcher
	base         string
	languageCode string
	navigationID string
	probeCount   int
	hitsSel      string
	entrySel     string
}

func newSearchLocator(fetch documentFetcher, cfg *config.Config) *SearchLocator {
	probe := cfg.ProbeCount
	if probe <= 0 {
		probe = 10
	}
	return &SearchLocator{
		fetch:        fetch,
		base:         strings.TrimRight(cfg.BaseURL, "/"),
		languageCode: cfg.LanguageCode,
		navigationID: cfg.SearchNavigationID,
		probeCount:   probe,
		hitsSel:      cfg.Selectors.Hits,
		entrySel:     cfg.Selectors.Entry,
	}
}

// SearchURL 拼出按日期排序的搜索地址，日期原样透传（格式 dd.mm.yyyy，不做校验）
func (l *SearchLocator) SearchURL(start, end string, count int) string {
	return fmt.Sprintf("%s/search/?languageCode=%s&searchNavigationId=%s&from=%s&to=%s&sort=DATE&resultsCounter=%d",
		l.base,
		url.QueryEscape(l.languageCode),
		url.QueryEscape(l.navigationID),
		url.QueryEscape(start),
		url.QueryEscape(end),
		count,
	)
}

func (l *SearchLocator) search(ctx context.Context, start, end string, count int) (*goquery.Document, error) {
	doc, err := l.fetch.Document(ctx, l.SearchURL(start, end, count))
	if err != nil {
		return nil, fmt.Errorf("collector: %w", err)
	}
	return doc, nil
}

// CountArticles 用探测请求读取命中总数；页面上没有命中数时按 0 处理
func (l *SearchLocator) CountArticles(ctx context.Context, start, end string) (int, error) {
	doc, err := l.search(ctx, start, end, l.probeCount)
	if err != nil {
		return 0, err
	}

	hits := doc.Find(l.hitsSel).First()
	if hits.Length() == 0 {
		log.Printf("dw search %s-%s: no hits element", start, end)
		return 0, nil
	}
	n, err := parseHits(hits.Text())
	if err != nil {
		return 0, fmt.Errorf("collector: parse hits: %w", err)
	}
	return n, nil
}

// ListEntries 按总数重新搜索，返回全部列表条目（保持文档顺序）
func (l *SearchLocator) ListEntries(ctx context.Context, start, end string, count int) ([]*goquery.Selection, error) {
	if count <= 0 {
		return nil, nil
	}
	doc, err := l.search(ctx, start, end, count)
	if err != nil {
		return nil, err
	}

	entries := make([]*goquery.Selection, 0, count)
	doc.Find(l.entrySel).Each(func(_ int, s *goquery.Selection) {
		entries = append(entries, s)
	})
	return entries, nil
}

// parseHits 去掉千分位后解析命中数，例如 "1,234"
func parseHits(s string) (int, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(",", "", ".", "", " ", "", "\u00a0", "").Replace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid hits %q: %w", s, err)
	}
	return n, nil
}
