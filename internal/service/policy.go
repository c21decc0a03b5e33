package service

import (
	"sync"
	"time"

	"school_lms_backend/internal/model"
)

// Clock 可在测试中替换
type Clock func() time.Time

// AttemptPolicy 作答期限策略，宽限时长可热更新
type AttemptPolicy struct {
	mu    sync.RWMutex
	grace time.Duration
}

func NewAttemptPolicy(grace time.Duration) *AttemptPolicy {
	return &AttemptPolicy{grace: grace}
}

func (p *AttemptPolicy) Grace() time.Duration {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.grace
}

func (p *AttemptPolicy) SetGrace(d time.Duration) {
	p.mu.Lock()
	p.grace = d
	p.mu.Unlock()
}

// AttemptDeadline 取开始时间加限时与关闭时间中较早者，不含宽限
func AttemptDeadline(a *model.Assessment, startedAt time.Time) time.Time {
	deadline := a.CloseAt
	if a.TimeLimitMinutes != nil && *a.TimeLimitMinutes > 0 {
		limit := startedAt.Add(time.Duration(*a.TimeLimitMinutes) * time.Minute)
		if limit.Before(deadline) {
			deadline = limit
		}
	}
	return deadline
}

// Expired 超过期限与宽限之和
func (p *AttemptPolicy) Expired(attempt *model.Attempt, now time.Time) bool {
	return now.After(attempt.ExpiresAt.Add(p.Grace()))
}
