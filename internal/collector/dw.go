package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LJTian/dwscraper/internal/config"
	"github.com/LJTian/dwscraper/internal/dataset"
)

// ErrMalformedDateRange 整个时间段一条都没抓到时返回；多半是日期格式不对，
// 但合法的空时间段也会落到这里
var ErrMalformedDateRange = errors.New("date must be specified in the format 'dd.mm.yyyy'")

// DateLayout 搜索接口使用的日期格式 dd.mm.yyyy
const DateLayout = "02.01.2006"

// Scraper 串行执行：探测总数 → 取完整列表 → 逐条抓详情，每条之间固定停顿
type Scraper struct {
	locator   *SearchLocator
	extractor *ArticleExtractor
	delay     time.Duration
}

func NewScraper(cfg *config.Config) (*Scraper, error) {
	site, err := newCollyFetcher(cfg)
	if err != nil {
		return nil, err
	}

	// 详情页 404/410 等按空字段处理，搜索页仍要求 2xx
	var detail documentFetcher = site.keepErrorPages()
	if cfg.RenderURL != "" {
		detail = newRenderFetcher(cfg.RenderURL, cfg.RequestTimeout)
	}

	return newScraper(site, detail, cfg), nil
}

func newScraper(search, detail documentFetcher, cfg *config.Config) *Scraper {
	return &Scraper{
		locator:   newSearchLocator(search, cfg),
		extractor: newArticleExtractor(detail, cfg),
		delay:     cfg.RequestDelay,
	}
}

// Scrape 抓取 [start, end] 内的全部文章。任何抓取/解析错误都会中止并丢弃已抓到的行；
// 结果为空时返回空表和 ErrMalformedDateRange。
func (s *Scraper) Scrape(ctx context.Context, start, end string) (*dataset.Table, error) {
	log.Printf("fetch dw articles %s - %s...", start, end)

	total, err := s.locator.CountArticles(ctx, start, end)
	if err != nil {
		return nil, err
	}

	entries, err := s.locator.ListEntries(ctx, start, end, total)
	if err != nil {
		return nil, err
	}
	log.Printf("dw search %s - %s: hits=%d entries=%d", start, end, total, len(entries))

	table := dataset.NewTable()
	for i, entry := range entries {
		a, err := s.extractor.Extract(ctx, i, entry)
		if err != nil {
			return nil, err
		}
		table.Append(a)

		if err := sleep(ctx, s.delay); err != nil {
			return nil, err
		}
	}

	if table.Len() == 0 {
		return table, ErrMalformedDateRange
	}

	log.Printf("dw articles %s - %s done, rows=%d", start, end, table.Len())
	return table, nil
}

// sleep 礼貌性停顿，ctx 取消时提前返回
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WindowFetcher 抓取截至昨天的最近 Days 天，供调度器每日执行
type WindowFetcher struct {
	Scraper *Scraper
	Days    int
	Now     func() time.Time
}

func (w *WindowFetcher) Name() string {
	return "dw_window"
}

// Window 返回 [今天-Days, 今天-1] 的起止日期
func (w *WindowFetcher) Window() (string, string) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	days := w.Days
	if days <= 0 {
		days = 1
	}
	today := now()
	start := today.AddDate(0, 0, -days)
	end := today.AddDate(0, 0, -1)
	return start.Format(DateLayout), end.Format(DateLayout)
}

func (w *WindowFetcher) Fetch(ctx context.Context) (*dataset.Table, error) {
	if w.Scraper == nil {
		return nil, fmt.Errorf("collector: %s: scraper not configured", w.Name())
	}
	start, end := w.Window()
	return w.Scraper.Scrape(ctx, start, end)
}
