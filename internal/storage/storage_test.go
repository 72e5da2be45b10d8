package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/LJTian/dwscraper/internal/collector"
	"github.com/LJTian/dwscraper/internal/processor"
)

func strPtr(s string) *string { return &s }

func TestTruncateRunesDB(t *testing.T) {
	if got := truncateRunesDB("  Köln  ", 10); got != "Köln" {
		t.Fatalf("truncateRunesDB should trim: %q", got)
	}
	if got := truncateRunesDB("Düsseldorf", 3); got != "Düs" {
		t.Fatalf("truncateRunesDB = %q, want %q", got, "Düs")
	}
	if got := truncateRunesDB("abc", 0); got != "" {
		t.Fatalf("limit 0 should give empty string, got %q", got)
	}
}

func TestToValidUTF8(t *testing.T) {
	bad := "ok\xffok"
	if got := toValidUTF8(bad); got != "ok�ok" {
		t.Fatalf("toValidUTF8 = %q", got)
	}
	if toValidUTF8Ptr(nil) != nil {
		t.Fatalf("nil pointer should stay nil")
	}
}

func TestToModel(t *testing.T) {
	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	it := processor.ProcessedArticle{
		ID:          "abc",
		Date:        "05.01.2024",
		PublishedOn: &day,
		Title:       strings.Repeat("t", 600),
		URL:         "https://www.dw.com/en/x/a-1",
		Teaser:      "teaser",
		Text:        strPtr("body"),
		Category:    strPtr(strings.Repeat("c", 200)),
		WindowFrom:  "01.01.2024",
		WindowTo:    "07.01.2024",
	}

	m := toModel("dw", it)
	if m.ID != "abc" || m.Source != "dw" || m.URL != it.URL {
		t.Fatalf("unexpected identity fields: %+v", m)
	}
	if n := len([]rune(m.Title)); n != 512 {
		t.Fatalf("title length = %d, want 512", n)
	}
	if m.Category == nil || len(*m.Category) != 128 {
		t.Fatalf("category not truncated: %v", m.Category)
	}
	if m.Region != nil {
		t.Fatalf("nil region should stay nil")
	}
	if m.ExtraData["window_from"] != "01.01.2024" || m.ExtraData["window_to"] != "07.01.2024" {
		t.Fatalf("window not stored in extra data: %v", m.ExtraData)
	}
}

func TestArticleQueryCacheKey(t *testing.T) {
	q := ArticleQuery{From: "2024-01-01", To: "2024-01-31", Category: "Science"}
	want := "articles:list:2024-01-01:2024-01-31:Science::50"
	if got := q.cacheKey(); got != want {
		t.Fatalf("cacheKey = %q, want %q", got, want)
	}

	q.Limit = 5000
	if got := q.cacheKey(); !strings.HasSuffix(got, ":50") {
		t.Fatalf("out of range limit should fall back to default: %q", got)
	}
}

func TestRunFinish(t *testing.T) {
	r := NewRun("cli", "01.01.2024", "02.01.2024")
	if r.ID == "" || r.Status != RunRunning {
		t.Fatalf("new run not initialised: %+v", r)
	}

	r.Finish(12, nil)
	if r.Status != RunOK || r.Rows != 12 || r.FinishedAt == nil {
		t.Fatalf("ok run: %+v", r)
	}

	r = NewRun("cron", "a", "b")
	r.Finish(0, fmt.Errorf("scrape: %w", collector.ErrMalformedDateRange))
	if r.Status != RunEmpty || r.Error != "" {
		t.Fatalf("empty window should be recorded as empty: %+v", r)
	}

	r = NewRun("api", "a", "b")
	r.Finish(0, errors.New("boom"))
	if r.Status != RunFailed || r.Error != "boom" {
		t.Fatalf("failed run: %+v", r)
	}

	if NewRun("cli", "", "").ID == NewRun("cli", "", "").ID {
		t.Fatalf("run IDs should be unique")
	}
}
