package collector

import (
	"context"

	"github.com/LJTian/dwscraper/internal/dataset"
	"github.com/PuerkitoBio/goquery"
)

// Fetcher 抽象一次采集任务（调度器按 cron 触发）
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) (*dataset.Table, error)
}

// documentFetcher 负责把一个 URL 取回并解析成 DOM
type documentFetcher interface {
	Document(ctx context.Context, rawURL string) (*goquery.Document, error)
}
