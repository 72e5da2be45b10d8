package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LJTian/dwscraper/internal/config"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// collyFetcher 用 colly 同步抓取页面，再交给 goquery 解析
type collyFetcher struct {
	c *colly.Collector
}

func newCollyFetcher(cfg *config.Config) (*collyFetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Hostname() == "" {
		return nil, fmt.Errorf("collector: invalid base url %q", cfg.BaseURL)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(base.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		// 探测请求与完整列表请求可能是同一个 URL（命中数恰好等于探测值）
		colly.AllowURLRevisit(),
		// 完整列表一次返回全部结果，页面可能很大
		colly.MaxBodySize(0),
	)
	if cfg.RequestTimeout > 0 {
		c.SetRequestTimeout(cfg.RequestTimeout)
	}
	return &collyFetcher{c: c}, nil
}

// keepErrorPages 返回一个共享配置的副本：4xx/5xx 页面照常解析，只有传输错误才返回 error
func (f *collyFetcher) keepErrorPages() *collyFetcher {
	c := f.c.Clone()
	c.ParseHTTPErrorResponse = true
	return &collyFetcher{c: c}
}

func (f *collyFetcher) Document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var body []byte
	c := f.c.Clone()
	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode >= 400 {
			log.Printf("fetch %s: status %d, parsing error page", rawURL, r.StatusCode)
		}
		body = r.Body
	})
	if err := c.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return doc, nil
}

type renderRequest struct {
	URL string `json:"url"`
}

type renderResponse struct {
	OK    bool   `json:"ok"`
	HTML  string `json:"html,omitempty"`
	Error string `json:"error,omitempty"`
}

// renderFetcher 把详情页交给 cmd/renderer（headless chrome）渲染，拿回执行过 JS 的 HTML
type renderFetcher struct {
	endpoint string
	c        *colly.Collector
}

func newRenderFetcher(endpoint string, timeout time.Duration) *renderFetcher {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(0),
	)
	// 渲染比直接抓取慢得多
	if timeout > 0 {
		c.SetRequestTimeout(2 * timeout)
	}
	return &renderFetcher{
		endpoint: strings.TrimRight(endpoint, "/") + "/render",
		c:        c,
	}
}

func (f *renderFetcher) Document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(renderRequest{URL: rawURL})
	if err != nil {
		return nil, err
	}

	var out renderResponse
	var decodeErr error
	c := f.c.Clone()
	c.OnResponse(func(r *colly.Response) {
		decodeErr = json.Unmarshal(r.Body, &out)
	})
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	if err := c.Request(http.MethodPost, f.endpoint, bytes.NewReader(payload), nil, hdr); err != nil {
		return nil, fmt.Errorf("render %s: %w", rawURL, err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode render response: %w", decodeErr)
	}
	if !out.OK {
		return nil, fmt.Errorf("render %s: %w", rawURL, errors.New(out.Error))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse rendered %s: %w", rawURL, err)
	}
	return doc, nil
}
