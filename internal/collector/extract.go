package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/LJTian/dwscraper/internal/config"
	"github.com/LJTian/dwscraper/internal/dataset"
	"github.com/PuerkitoBio/goquery"
)

// ErrMissingField 列表条目中缺少必需元素（日期、标题行、摘要、链接）
var ErrMissingField = errors.New("required field missing")

const (
	titleLine      = 6
	promoTitleLine = 16
)

// TitleOffset 返回标题在条目纯文本中的行号。
// 每第 10 条（不含第 0 条）前面插了推广块，标题整体下移。
func TitleOffset(index int) int {
	if index > 0 && index%10 == 0 {
		return promoTitleLine
	}
	return titleLine
}

// ArticleExtractor 从列表条目和详情页中按固定结构取字段
type ArticleExtractor struct {
	fetch         documentFetcher
	origin        string
	sel           config.Selectors
	minTextLength int
}

func newArticleExtractor(fetch documentFetcher, cfg *config.Config) *ArticleExtractor {
	return &ArticleExtractor{
		fetch:         fetch,
		origin:        strings.TrimRight(cfg.BaseURL, "/"),
		sel:           cfg.Selectors,
		minTextLength: cfg.MinTextLength,
	}
}

// Extract 生成一条完整记录：列表字段 + 抓取详情页后的正文 / 分类 / 地区
func (x *ArticleExtractor) Extract(ctx context.Context, index int, entry *goquery.Selection) (dataset.Article, error) {
	a, err := x.ExtractListing(index, entry)
	if err != nil {
		return dataset.Article{}, err
	}

	doc, err := x.fetch.Document(ctx, a.URL)
	if err != nil {
		return dataset.Article{}, fmt.Errorf("collector: entry %d: %w", index, err)
	}
	x.ExtractDetail(doc, &a)
	return a, nil
}

// ExtractListing 取列表条目里的日期、标题、摘要和文章地址，任一缺失即报错。
// 标题行去掉首尾空白（条目 HTML 的缩进会带进纯文本），其余字段保持原文。
func (x *ArticleExtractor) ExtractListing(index int, entry *goquery.Selection) (dataset.Article, error) {
	date := entry.Find(x.sel.Date).First()
	if date.Length() == 0 {
		return dataset.Article{}, missing(index, "date")
	}

	title, ok := lineAt(entry.Text(), TitleOffset(index))
	if !ok {
		return dataset.Article{}, missing(index, "title")
	}

	teaser := entry.Find(x.sel.Teaser).First()
	if teaser.Length() == 0 {
		return dataset.Article{}, missing(index, "teaser")
	}

	href, ok := entry.Find(x.sel.Link).First().Attr("href")
	if !ok {
		return dataset.Article{}, missing(index, "url")
	}

	return dataset.Article{
		Date:   date.Text(),
		Title:  title,
		URL:    x.origin + href,
		Teaser: teaser.Text(),
	}, nil
}

// ExtractDetail 取详情页字段；选择器落空或正文过短时对应字段留空（nil），不报错
func (x *ArticleExtractor) ExtractDetail(doc *goquery.Document, a *dataset.Article) {
	a.Text = x.text(doc)
	a.Category = textOf(doc, x.sel.Category)
	a.Region = textOf(doc, x.sel.Region)
}

func (x *ArticleExtractor) text(doc *goquery.Document) *string {
	t := textOf(doc, x.sel.Text)
	if t == nil {
		return nil
	}
	// 太短说明不是正文页（视频、图集等）
	if utf8.RuneCountInString(*t) < x.minTextLength {
		return nil
	}
	return t
}

func textOf(doc *goquery.Document, selector string) *string {
	s := doc.Find(selector).First()
	if s.Length() == 0 {
		return nil
	}
	t := s.Text()
	return &t
}

// lineAt 取按 \n 切分后的第 n 行（去掉首尾空白）
func lineAt(text string, n int) (string, bool) {
	lines := strings.Split(text, "\n")
	if n < 0 || n >= len(lines) {
		return "", false
	}
	return strings.TrimSpace(lines[n]), true
}

func missing(index int, field string) error {
	return fmt.Errorf("collector: entry %d: %s: %w", index, field, ErrMissingField)
}
