package main

import (
	"log"
	"sync"

	"github.com/LJTian/dwscraper/internal/api"
	"github.com/LJTian/dwscraper/internal/collector"
	"github.com/LJTian/dwscraper/internal/config"
	"github.com/LJTian/dwscraper/internal/processor"
	"github.com/LJTian/dwscraper/internal/scheduler"
	"github.com/LJTian/dwscraper/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}

	if _, err := store.EnsureChannel("dw", "Deutsche Welle", cfg.BaseURL); err != nil {
		log.Fatalf("ensure channel dw failed: %v", err)
	}

	scraper, err := collector.NewScraper(cfg)
	if err != nil {
		log.Fatalf("init scraper failed: %v", err)
	}

	// 每天抓取截至昨天的时间段
	jobs := []scheduler.FetcherJob{
		{
			Fetcher:  &collector.WindowFetcher{Scraper: scraper, Days: cfg.WindowDays, Now: config.Now},
			CronSpec: cfg.CronSpec,
			Source:   "dw",
		},
	}

	// 定时任务与接口的按需抓取共用一把锁
	scrapeMu := &sync.Mutex{}

	p := processor.NewSimpleProcessor()
	s, err := scheduler.New(jobs, p, store, scrapeMu)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()
	defer s.Stop()

	// API
	r := gin.Default()
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	apiServer := api.NewServer(store, scraper, scrapeMu)
	apiServer.RegisterRoutes(r)

	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}
