package service

import (
	"context"
	"time"

	"school_lms_backend/internal/model"
	"school_lms_backend/internal/repository"
	"school_lms_backend/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger 将 cron 日志接入 zap
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

// ExpirySweeper 定时将超过期限的进行中作答按已保存作答评分并标记为 timeout
type ExpirySweeper struct {
	Attempts *repository.AttemptRepository
	Ledger   *AttemptLedger
	cron     *cron.Cron
}

func NewExpirySweeper(attempts *repository.AttemptRepository, ledger *AttemptLedger) *ExpirySweeper {
	return &ExpirySweeper{Attempts: attempts, Ledger: ledger}
}

func (s *ExpirySweeper) Start(schedule string) error {
	c := cron.New(cron.WithLogger(cronLogger{}), cron.WithChain(
		cron.Recover(cronLogger{}),
		cron.SkipIfStillRunning(cronLogger{}),
	))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.SweepOnce(ctx); err != nil {
			logger.Log.Error("Expiry sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	logger.Log.Info("Expiry sweeper started", zap.String("schedule", schedule))
	return nil
}

// Stop 等待正在执行的任务结束
func (s *ExpirySweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// SweepOnce 返回本次超时结束的作答数。
// 期限比较在应用内完成，避免依赖各数据库的时间比较语义。
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	attempts, err := s.Attempts.ListInProgress(ctx)
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range attempts {
		a := &attempts[i]
		if !s.Ledger.Expired(a) {
			continue
		}
		if _, err := s.Ledger.Finalize(ctx, a.ID, 0, model.AttemptTimeout, 0); err != nil {
			logger.Log.Warn("Timing out attempt failed", zap.String("attempt_id", a.ID), zap.Error(err))
			continue
		}
		swept++
	}
	if swept > 0 {
		logger.Log.Info("Expired attempts timed out", zap.Int("count", swept))
	}
	return swept, nil
}
