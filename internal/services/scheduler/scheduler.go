// Package scheduler запускает фоновые задачи с фиксированным интервалом.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job описывает одну периодическую задачу.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler запускает задачи сразу и затем по тикеру каждой из них.
// Запуски одной задачи не пересекаются: следующий тик ждёт окончания
// предыдущего запуска.
type Scheduler struct {
	jobs []Job
	log  *slog.Logger
}

// New создаёт новый Scheduler.
func New(log *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs: jobs,
		log:  log,
	}
}

// Run блокируется до отмены ctx и завершения всех текущих запусков.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	log := s.log.With(slog.String("job", job.Name))
	log.Info("job scheduled", slog.Duration("interval", job.Interval))

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		log.Debug("job run started")
		job.Run(ctx)

		select {
		case <-ctx.Done():
			log.Info("job stopped")
			return
		case <-ticker.C:
		}
	}
}
