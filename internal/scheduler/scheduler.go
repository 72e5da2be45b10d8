package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/LJTian/dwscraper/internal/collector"
	"github.com/LJTian/dwscraper/internal/processor"
	"github.com/LJTian/dwscraper/internal/storage"
	"github.com/robfig/cron/v3"
)

// Archive 调度器需要的存储能力，*storage.Store 满足
type Archive interface {
	SaveBatch(source string, items []processor.ProcessedArticle) error
	SaveRun(ctx context.Context, r *storage.Run) error
}

// windowed 能报告本轮抓取时间段的采集器
type windowed interface {
	Window() (string, string)
}

// FetcherJob 一个采集器及其执行周期
type FetcherJob struct {
	Fetcher  collector.Fetcher
	CronSpec string
	// Source 入库时的渠道编码
	Source string
}

type Scheduler struct {
	cron      *cron.Cron
	jobs      []FetcherJob
	processor *processor.SimpleProcessor
	store     Archive
	timeout   time.Duration
	// lock 与 API 的按需抓取共用，保证同一时间只有一路请求访问站点
	lock sync.Locker
}

// New 创建调度器；lock 为 nil 时使用独立的锁
func New(jobs []FetcherJob, p *processor.SimpleProcessor, store Archive, lock sync.Locker) (*Scheduler, error) {
	c := cron.New()
	if lock == nil {
		lock = &sync.Mutex{}
	}

	s := &Scheduler{
		cron:      c,
		jobs:      jobs,
		processor: p,
		store:     store,
		timeout:   2 * time.Hour,
		lock:      lock,
	}

	for _, j := range jobs {
		job := j
		if _, err := c.AddFunc(job.CronSpec, func() { s.runJob(context.Background(), job, "cron") }); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Cron 暴露底层 cron，便于额外挂载任务
func (s *Scheduler) Cron() *cron.Cron {
	return s.cron
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发采集
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) {
	log.Println("start collect job...")
	for _, job := range s.jobs {
		s.runJob(ctx, job, trigger)
	}
	log.Println("collect job done (all sources)")
}

// runJob 执行一次采集并记录 Run；DW 请求必须串行，所以各任务依次执行
func (s *Scheduler) runJob(ctx context.Context, job FetcherJob, trigger string) *storage.Run {
	s.lock.Lock()
	defer s.lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	name := job.Fetcher.Name()
	var from, to string
	if w, ok := job.Fetcher.(windowed); ok {
		from, to = w.Window()
	}

	run := storage.NewRun(trigger, from, to)
	run.ExtraData = map[string]any{"fetcher": name}
	if err := s.store.SaveRun(ctx, run); err != nil {
		log.Printf("record run %s error: %v", name, err)
	}

	rows, err := s.collect(ctx, job, from, to)
	run.Finish(rows, err)
	// 原 ctx 可能已超时，结束状态用新的 ctx 写入
	if err := s.store.SaveRun(context.Background(), run); err != nil {
		log.Printf("record run %s error: %v", name, err)
	}
	return run
}

func (s *Scheduler) collect(ctx context.Context, job FetcherJob, from, to string) (int, error) {
	name := job.Fetcher.Name()
	log.Printf("fetch from %s...", name)

	table, err := job.Fetcher.Fetch(ctx)
	if errors.Is(err, collector.ErrMalformedDateRange) {
		log.Printf("fetch %s got 0 items", name)
		return 0, err
	}
	if err != nil {
		log.Printf("fetch %s error: %v", name, err)
		return 0, err
	}

	processed := s.processor.Process(table, from, to)
	if len(processed) == 0 {
		return table.Len(), nil
	}
	if err := s.store.SaveBatch(job.Source, processed); err != nil {
		log.Printf("save %s batch error: %v", name, err)
		return table.Len(), err
	}
	// 条数 = 本轮采集解析到的数量（非“新增数”，已存在会更新）
	log.Printf("%s done, fetched=%d saved=%d items", name, table.Len(), len(processed))
	return table.Len(), nil
}
