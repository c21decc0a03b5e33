package service

import (
	"context"
	"errors"
	"time"

	"school_lms_backend/internal/grading"
	"school_lms_backend/internal/model"
	"school_lms_backend/internal/repository"
	"school_lms_backend/internal/util"
	"school_lms_backend/pkg/logger"
	"school_lms_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AttemptLedger 负责作答记录的创建、自动保存与结束，所有写操作在单个事务内完成
type AttemptLedger struct {
	DB          *gorm.DB
	Assessments *repository.AssessmentRepository
	Attempts    *repository.AttemptRepository
	Events      *repository.EventRepository
	Engine      *grading.Engine
	Policy      *AttemptPolicy
	Now         Clock
}

func NewAttemptLedger(
	db *gorm.DB,
	assessments *repository.AssessmentRepository,
	attempts *repository.AttemptRepository,
	events *repository.EventRepository,
	engine *grading.Engine,
	policy *AttemptPolicy,
) *AttemptLedger {
	return &AttemptLedger{
		DB:          db,
		Assessments: assessments,
		Attempts:    attempts,
		Events:      events,
		Engine:      engine,
		Policy:      policy,
		Now:         time.Now,
	}
}

// Expired 作答是否已超过期限（含宽限）
func (l *AttemptLedger) Expired(a *model.Attempt) bool {
	return l.Policy.Expired(a, l.Now())
}

// GetOrCreateInProgress 返回进行中的作答，不存在则新建。
// active_key 唯一索引挡住并发创建，失败方回读胜者的记录。
func (l *AttemptLedger) GetOrCreateInProgress(ctx context.Context, a *model.Assessment, learnerID uint) (*model.Attempt, bool, error) {
	var attempt *model.Attempt
	created := false

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempts := l.Attempts.WithTx(tx)

		existing, err := attempts.FindActive(ctx, a.ID, learnerID)
		if err == nil {
			attempt = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		last, err := attempts.MaxAttemptNumber(ctx, a.ID, learnerID)
		if err != nil {
			return err
		}

		now := l.Now()
		key := model.ActiveAttemptKey(a.ID, learnerID)
		attempt = &model.Attempt{
			AssessmentID:  a.ID,
			LearnerID:     learnerID,
			AttemptNumber: last + 1,
			Status:        model.AttemptInProgress,
			ActiveKey:     &key,
			StartedAt:     now,
			ExpiresAt:     AttemptDeadline(a, now),
		}
		if err := attempts.Create(ctx, attempt); err != nil {
			return err
		}
		created = true

		return l.Events.WithTx(tx).Append(ctx, attempt.ID, model.EventAttemptStarted, learnerID, map[string]interface{}{
			"assessmentId":  a.ID,
			"kind":          a.Kind,
			"attemptNumber": attempt.AttemptNumber,
			"expiresAt":     attempt.ExpiresAt,
		})
	})
	if err != nil {
		if winner, rerr := l.Attempts.FindActive(ctx, a.ID, learnerID); rerr == nil {
			logger.Log.Info("Concurrent start resolved to existing attempt",
				zap.String("attempt_id", winner.ID),
				zap.Uint("assessment_id", a.ID),
				zap.Uint("learner_id", learnerID))
			return winner, false, nil
		}
		return nil, false, util.Persistence(err)
	}

	if created {
		monitoring.AttemptsStarted.WithLabelValues(string(a.Kind)).Inc()
		logger.Log.Info("Attempt started",
			zap.String("attempt_id", attempt.ID),
			zap.Uint("assessment_id", a.ID),
			zap.Uint("learner_id", learnerID),
			zap.Int("attempt_number", attempt.AttemptNumber))
	}
	return attempt, created, nil
}

// RecordAnswer 用新作答整体替换该题旧作答。
// 作答已结束或已超时则返回 AttemptClosed。
func (l *AttemptLedger) RecordAnswer(ctx context.Context, attemptID string, question *model.Question, value grading.Value) error {
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempts := l.Attempts.WithTx(tx)

		attempt, err := attempts.FindByIDForUpdate(ctx, attemptID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.NewError(util.KindNotFound, "attempt not found")
			}
			return err
		}
		if attempt.Status != model.AttemptInProgress {
			return util.NewError(util.KindAttemptClosed, "attempt has already been %s", attempt.Status)
		}
		if l.Expired(attempt) {
			return util.NewError(util.KindAttemptClosed, "time is up for this attempt; answers can no longer be saved")
		}

		return attempts.ReplaceAnswers(ctx, attempt.ID, question.ID, grading.Rows(attempt.ID, question.ID, value))
	})
	if err != nil {
		var appErr *util.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return util.Persistence(err)
	}
	monitoring.AnswersSaved.Inc()
	return nil
}

// Finalize 结束作答并评分。已结束的作答原样返回，不重复评分。
// 请求提交但已超过期限时以 timeout 结束。
func (l *AttemptLedger) Finalize(ctx context.Context, attemptID string, timeTaken int, status model.AttemptStatus, actorID uint) (*model.Attempt, error) {
	var (
		attempt    *model.Attempt
		assessment *model.Assessment
		finalized  bool
	)

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempts := l.Attempts.WithTx(tx)

		var err error
		attempt, err = attempts.FindByIDForUpdate(ctx, attemptID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.NewError(util.KindNotFound, "attempt not found")
			}
			return err
		}
		if attempt.Status.Finalized() {
			return nil
		}

		assessment, err = l.Assessments.WithTx(tx).FindByID(ctx, attempt.AssessmentID)
		if err != nil {
			return err
		}

		now := l.Now()
		if status == model.AttemptSubmitted && l.Policy.Expired(attempt, now) {
			status = model.AttemptTimeout
		}

		result, err := l.score(ctx, tx, attempt)
		if err != nil {
			return err
		}

		finishedAt := now
		if status == model.AttemptTimeout && attempt.ExpiresAt.Before(now) {
			finishedAt = attempt.ExpiresAt
		}
		if timeTaken <= 0 {
			timeTaken = int(finishedAt.Sub(attempt.StartedAt).Seconds())
		}

		attempt.Status = status
		attempt.ActiveKey = nil
		attempt.FinishedAt = &finishedAt
		attempt.Score = &result.Total
		attempt.MaxScore = &result.Max
		attempt.TimeTaken = &timeTaken
		if err := attempts.Save(ctx, attempt); err != nil {
			return err
		}
		finalized = true

		eventType := model.EventAttemptSubmitted
		if status == model.AttemptTimeout {
			eventType = model.EventAttemptTimedOut
		}
		return l.Events.WithTx(tx).Append(ctx, attempt.ID, eventType, actorID, map[string]interface{}{
			"score":     result.Total,
			"maxScore":  result.Max,
			"timeTaken": timeTaken,
		})
	})
	if err != nil {
		var appErr *util.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		logger.Log.Error("Finalize attempt failed", zap.String("attempt_id", attemptID), zap.Error(err))
		return nil, util.Persistence(err)
	}

	if finalized {
		monitoring.ObserveFinalized(string(assessment.Kind), string(attempt.Status), *attempt.Score, *attempt.MaxScore)
		logger.Log.Info("Attempt finalized",
			zap.String("attempt_id", attempt.ID),
			zap.Uint("assessment_id", attempt.AssessmentID),
			zap.Uint("learner_id", attempt.LearnerID),
			zap.String("status", string(attempt.Status)),
			zap.Float64("score", *attempt.Score))
	}
	return attempt, nil
}

// Regrade 依据已保存的作答重新计算已结束作答的得分
func (l *AttemptLedger) Regrade(ctx context.Context, attemptID string, actorID uint) (*model.Attempt, error) {
	var attempt *model.Attempt

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempts := l.Attempts.WithTx(tx)

		var err error
		attempt, err = attempts.FindByIDForUpdate(ctx, attemptID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.NewError(util.KindNotFound, "attempt not found")
			}
			return err
		}
		if !attempt.Status.Finalized() {
			return util.NewError(util.KindValidation, "attempt is still in progress")
		}

		result, err := l.score(ctx, tx, attempt)
		if err != nil {
			return err
		}

		var previous float64
		if attempt.Score != nil {
			previous = *attempt.Score
		}
		attempt.Score = &result.Total
		attempt.MaxScore = &result.Max
		if err := attempts.Save(ctx, attempt); err != nil {
			return err
		}

		return l.Events.WithTx(tx).Append(ctx, attempt.ID, model.EventAttemptRegraded, actorID, map[string]interface{}{
			"previousScore": previous,
			"score":         result.Total,
			"maxScore":      result.Max,
		})
	})
	if err != nil {
		var appErr *util.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, util.Persistence(err)
	}

	logger.Log.Info("Attempt regraded",
		zap.String("attempt_id", attempt.ID),
		zap.Uint("actor_id", actorID),
		zap.Float64("score", *attempt.Score))
	return attempt, nil
}

// score 在给定事务内读取题目与作答并评分
func (l *AttemptLedger) score(ctx context.Context, tx *gorm.DB, attempt *model.Attempt) (grading.Result, error) {
	questions, err := l.Assessments.WithTx(tx).ListQuestions(ctx, attempt.AssessmentID)
	if err != nil {
		return grading.Result{}, err
	}
	answers, err := l.Attempts.WithTx(tx).ListAnswers(ctx, attempt.ID)
	if err != nil {
		return grading.Result{}, err
	}
	return l.Engine.Score(grading.KeysFromQuestions(questions), grading.ValuesFromAnswers(questions, answers)), nil
}
