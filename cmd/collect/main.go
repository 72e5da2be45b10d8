package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/LJTian/dwscraper/internal/collector"
	"github.com/LJTian/dwscraper/internal/config"
	"github.com/LJTian/dwscraper/internal/dataset"
	"github.com/LJTian/dwscraper/internal/processor"
	"github.com/LJTian/dwscraper/internal/storage"
	"github.com/mattn/go-runewidth"
)

// 一个仅执行一次抓取的命令行入口：抓取指定时间段，输出表格，可选入库
func main() {
	from := flag.String("from", "", "start date, dd.mm.yyyy")
	to := flag.String("to", "", "end date, dd.mm.yyyy")
	format := flag.String("format", "table", "output format: table, csv or json")
	out := flag.String("out", "", "output file (default stdout)")
	save := flag.Bool("save", false, "also write the articles to postgres")
	flag.Parse()

	if *from == "" || *to == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()

	scraper, err := collector.NewScraper(cfg)
	if err != nil {
		log.Fatalf("init scraper failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var store *storage.Store
	var run *storage.Run
	if *save {
		store, err = storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("init store failed: %v", err)
		}
		if _, err := store.EnsureChannel("dw", "Deutsche Welle", cfg.BaseURL); err != nil {
			log.Fatalf("ensure channel dw failed: %v", err)
		}
		run = storage.NewRun("cli", *from, *to)
		if err := store.SaveRun(ctx, run); err != nil {
			log.Printf("record run error: %v", err)
		}
	}

	table, err := scraper.Scrape(ctx, *from, *to)
	if err == nil && store != nil {
		err = store.SaveBatch("dw", processor.NewSimpleProcessor().Process(table, *from, *to))
	}
	if run != nil {
		rows := 0
		if table != nil {
			rows = table.Len()
		}
		run.Finish(rows, err)
		if err := store.SaveRun(context.Background(), run); err != nil {
			log.Printf("record run error: %v", err)
		}
	}
	if err != nil && !errors.Is(err, collector.ErrMalformedDateRange) {
		log.Fatalf("scrape failed: %v", err)
	}
	if err != nil {
		// 空表也照常输出，退出码区分
		log.Printf("got 0 items: %v", err)
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		f, ferr := os.Create(*out)
		if ferr != nil {
			log.Fatalf("create %s failed: %v", *out, ferr)
		}
		defer f.Close()
		w = f
	}

	if werr := write(w, *format, table); werr != nil {
		log.Fatalf("write output failed: %v", werr)
	}
	if err != nil {
		os.Exit(1)
	}
}

func write(w io.Writer, format string, table *dataset.Table) error {
	switch format {
	case "csv":
		return table.WriteCSV(w)
	case "json":
		return table.WriteJSON(w)
	case "table":
		return writeTable(w, table)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// writeTable 终端里只展示较短的列，正文截断
func writeTable(w io.Writer, table *dataset.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tdate\ttitle\tcategory\tregion\ttext")
	for i, a := range table.Rows() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i, a.Date, clip(a.Title, 60), orNull(a.Category), orNull(a.Region), clip(orNull(a.Text), 40))
	}
	fmt.Fprintf(tw, "%d rows\n", table.Len())
	return tw.Flush()
}

func orNull(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}

// clip 按显示宽度截断，避免宽字符把列撑歪
func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, n, "…")
}
