package services

import (
	"time"

	"cre-chatbot-platform/internal/logger"

	"github.com/go-co-op/gocron"
)

// CacheJanitor periodically sweeps expired entries out of the in-process
// fallback store. Redis handles its own expiry; the local map does not.
type CacheJanitor struct {
	local     *LocalStore
	scheduler *gocron.Scheduler
}

func NewCacheJanitor(local *LocalStore) *CacheJanitor {
	return &CacheJanitor{
		local:     local,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

func (j *CacheJanitor) Start() {
	if j.local == nil {
		return
	}

	j.scheduler.Every(5).Minutes().Do(func() {
		removed := j.local.Purge()
		if removed > 0 {
			logger.Debug("purged expired fallback entries", "removed", removed, "remaining", j.local.Len())
		}
	})
	j.scheduler.StartAsync()
}

func (j *CacheJanitor) Stop() {
	j.scheduler.Stop()
}
