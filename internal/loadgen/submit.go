package loadgen

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/survcast/pkg/logger"
)

// workerChannelMultiplier sizes the feed channel relative to the pool.
const workerChannelMultiplier = 2

// submitPatients posts every patient with a pool of workers. The returned
// map holds the prediction of each patient that succeeded.
func submitPatients(ctx context.Context, cfg *Config, c *client, patients []Patient, stats *Stats) map[string]Prediction {
	log := logger.Get().Named("loadgen")
	log.Info(ctx, "submitting patients", logger.Int("patients", len(patients)), logger.Int("workers", cfg.Workers))

	var (
		mu        sync.Mutex
		results   = make(map[string]Prediction, len(patients))
		submitted int64
		failed    int64
		wg        sync.WaitGroup
	)
	feed := make(chan Patient, cfg.Workers*workerChannelMultiplier)

	var lastReport atomic.Int64
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range feed {
				if ctx.Err() != nil {
					return
				}
				var pred Prediction
				err := c.postJSON(ctx, "/api/predict", p, &pred)
				n := atomic.AddInt64(&submitted, 1)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					if cfg.Verbose {
						log.Warn(ctx, "predict failed", logger.String("patient_id", p.ID()), logger.Error(err))
					}
				} else {
					mu.Lock()
					results[pred.PatientID] = pred
					mu.Unlock()
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(time.Second) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int("submitted", int(n)),
						logger.Int("total", len(patients)),
						logger.Int("failed", int(atomic.LoadInt64(&failed))))
				}
			}
		}()
	}

	go func() {
		defer close(feed)
		for _, p := range patients {
			select {
			case <-ctx.Done():
				return
			case feed <- p:
			}
		}
	}()
	wg.Wait()

	stats.Submitted = int(atomic.LoadInt64(&submitted))
	stats.Failed = int(atomic.LoadInt64(&failed))
	stats.Successful = len(results)
	for _, pred := range results {
		stats.TierCounts[pred.RiskTier]++
	}
	return results
}
