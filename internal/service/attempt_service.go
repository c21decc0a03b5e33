package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"school_lms_backend/internal/grading"
	"school_lms_backend/internal/model"
	"school_lms_backend/internal/repository"
	"school_lms_backend/internal/util"
	"school_lms_backend/pkg/logger"
	"school_lms_backend/pkg/monitoring"
	"school_lms_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaperChoice 学生可见的选项，不含正确标记
type PaperChoice struct {
	ID         uint   `json:"id"`
	ChoiceText string `json:"choiceText"`
}

type PaperQuestion struct {
	ID           uint               `json:"id"`
	QuestionType model.QuestionType `json:"questionType"`
	Prompt       string             `json:"prompt"`
	Score        float64            `json:"score"`
	Choices      []PaperChoice      `json:"choices"`
}

type PaperHeader struct {
	ID               uint                 `json:"id"`
	Kind             model.AssessmentKind `json:"kind"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	MaxScore         float64              `json:"maxScore"`
	TimeLimitMinutes *int                 `json:"timeLimitMinutes,omitempty"`
	AttemptsAllowed  int                  `json:"attemptsAllowed"`
	DisplayMode      model.DisplayMode    `json:"displayMode"`
	OpenAt           time.Time            `json:"openAt"`
	CloseAt          time.Time            `json:"closeAt"`
}

// Paper 试卷及学生当前进行中的作答（用于断点续答）
type Paper struct {
	Assessment PaperHeader          `json:"assessment"`
	Questions  []PaperQuestion      `json:"questions"`
	AttemptID  string               `json:"attemptId,omitempty"`
	Deadline   *time.Time           `json:"deadline,omitempty"`
	Answers    map[uint]interface{} `json:"answers,omitempty"`
}

type StartResult struct {
	AttemptID     string    `json:"attemptId"`
	AttemptNumber int       `json:"attemptNumber"`
	StartedAt     time.Time `json:"startedAt"`
	Deadline      time.Time `json:"deadline"`
	Resumed       bool      `json:"resumed"`
}

type SubmitResult struct {
	AttemptID string              `json:"attemptId"`
	Score     float64             `json:"score"`
	MaxScore  float64             `json:"maxScore"`
	Status    model.AttemptStatus `json:"status"`
}

type AttemptSummary struct {
	AttemptID     string               `json:"attemptId"`
	AssessmentID  uint                 `json:"assessmentId"`
	Kind          model.AssessmentKind `json:"kind"`
	Title         string               `json:"title"`
	LearnerID     uint                 `json:"learnerId"`
	LearnerName   string               `json:"learnerName,omitempty"`
	LearnerEmail  string               `json:"learnerEmail,omitempty"`
	AttemptNumber int                  `json:"attemptNumber"`
	Status        model.AttemptStatus  `json:"status"`
	StartedAt     time.Time            `json:"startedAt"`
	Deadline      time.Time            `json:"deadline"`
	FinishedAt    *time.Time           `json:"finishedAt,omitempty"`
	Score         *float64             `json:"score,omitempty"`
	MaxScore      *float64             `json:"maxScore,omitempty"`
	TimeTaken     *int                 `json:"timeTaken,omitempty"`
}

func NewAttemptSummary(a *model.Assessment, attempt *model.Attempt) AttemptSummary {
	return AttemptSummary{
		AttemptID:     attempt.ID,
		AssessmentID:  attempt.AssessmentID,
		Kind:          a.Kind,
		Title:         a.Title,
		LearnerID:     attempt.LearnerID,
		AttemptNumber: attempt.AttemptNumber,
		Status:        attempt.Status,
		StartedAt:     attempt.StartedAt,
		Deadline:      attempt.ExpiresAt,
		FinishedAt:    attempt.FinishedAt,
		Score:         attempt.Score,
		MaxScore:      attempt.MaxScore,
		TimeTaken:     attempt.TimeTaken,
	}
}

// AttemptService 学生作答入口：取卷、开始、自动保存、提交、查看结果
type AttemptService struct {
	Assessments *repository.AssessmentRepository
	Attempts    *repository.AttemptRepository
	Cache       *repository.PaperCache
	Gate        *AvailabilityGate
	Ledger      *AttemptLedger
}

func NewAttemptService(
	assessments *repository.AssessmentRepository,
	attempts *repository.AttemptRepository,
	cache *repository.PaperCache,
	gate *AvailabilityGate,
	ledger *AttemptLedger,
) *AttemptService {
	return &AttemptService{
		Assessments: assessments,
		Attempts:    attempts,
		Cache:       cache,
		Gate:        gate,
		Ledger:      ledger,
	}
}

// questions 优先读缓存，缓存故障只记日志
func (s *AttemptService) questions(ctx context.Context, assessmentID uint) ([]model.Question, error) {
	qs, hit, err := s.Cache.Get(ctx, assessmentID)
	if err != nil {
		logger.Log.Warn("Paper cache read failed", zap.Uint("assessment_id", assessmentID), zap.Error(err))
	}
	if hit {
		return qs, nil
	}

	qs, err = s.Assessments.ListQuestions(ctx, assessmentID)
	if err != nil {
		return nil, util.Persistence(err)
	}
	if err := s.Cache.Set(ctx, assessmentID, qs); err != nil {
		logger.Log.Warn("Paper cache write failed", zap.Uint("assessment_id", assessmentID), zap.Error(err))
	}
	return qs, nil
}

func (s *AttemptService) GetPaper(ctx context.Context, kind model.AssessmentKind, assessmentID, learnerID uint) (paper *Paper, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.GetPaper",
		attribute.Int64("assessment.id", int64(assessmentID)),
		attribute.Int64("learner.id", int64(learnerID)))
	defer func() { tracing.EndSpan(span, err) }()

	a, avail, err := s.Gate.CheckByID(ctx, kind, assessmentID, learnerID)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, avail.Err()
	}

	qs, err := s.questions(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, util.NewError(util.KindNoQuestions, "This %s has no questions yet", a.Kind)
	}

	paper = &Paper{
		Assessment: PaperHeader{
			ID:               a.ID,
			Kind:             a.Kind,
			Title:            a.Title,
			Description:      a.Description,
			MaxScore:         a.MaxScore,
			TimeLimitMinutes: a.TimeLimitMinutes,
			AttemptsAllowed:  a.AttemptsAllowed,
			DisplayMode:      a.DisplayMode,
			OpenAt:           a.OpenAt,
			CloseAt:          a.CloseAt,
		},
		Questions: make([]PaperQuestion, 0, len(qs)),
	}
	for _, q := range qs {
		pq := PaperQuestion{
			ID:           q.ID,
			QuestionType: q.QuestionType,
			Prompt:       q.Prompt,
			Score:        q.Score,
			Choices:      make([]PaperChoice, 0, len(q.Choices)),
		}
		for _, c := range q.Choices {
			pq.Choices = append(pq.Choices, PaperChoice{ID: c.ID, ChoiceText: c.ChoiceText})
		}
		paper.Questions = append(paper.Questions, pq)
	}

	active, err := s.Attempts.FindActive(ctx, a.ID, learnerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return paper, nil
		}
		return nil, util.Persistence(err)
	}
	answers, err := s.Attempts.ListAnswers(ctx, active.ID)
	if err != nil {
		return nil, util.Persistence(err)
	}
	deadline := active.ExpiresAt
	paper.AttemptID = active.ID
	paper.Deadline = &deadline
	paper.Answers = make(map[uint]interface{})
	for qid, v := range grading.ValuesFromAnswers(qs, answers) {
		paper.Answers[qid] = grading.Export(v)
	}
	return paper, nil
}

// Start 通过准入检查后获取或创建进行中的作答，失败时不产生任何写入
func (s *AttemptService) Start(ctx context.Context, kind model.AssessmentKind, assessmentID, learnerID uint) (res *StartResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.Start",
		attribute.Int64("assessment.id", int64(assessmentID)),
		attribute.Int64("learner.id", int64(learnerID)))
	defer func() { tracing.EndSpan(span, err) }()

	a, err := s.admit(ctx, kind, assessmentID, learnerID)
	if err != nil {
		return nil, err
	}

	count, err := s.Assessments.CountQuestions(ctx, a.ID)
	if err != nil {
		return nil, util.Persistence(err)
	}
	if count == 0 {
		return nil, util.NewError(util.KindNoQuestions, "This %s has no questions yet", a.Kind)
	}

	attempt, created, err := s.Ledger.GetOrCreateInProgress(ctx, a, learnerID)
	if err != nil {
		return nil, err
	}

	// 恢复的作答已过期：先按超时结束，再重新准入
	if !created && s.Ledger.Expired(attempt) {
		if _, err := s.Ledger.Finalize(ctx, attempt.ID, 0, model.AttemptTimeout, learnerID); err != nil {
			return nil, err
		}
		if a, err = s.admit(ctx, kind, assessmentID, learnerID); err != nil {
			return nil, err
		}
		if attempt, created, err = s.Ledger.GetOrCreateInProgress(ctx, a, learnerID); err != nil {
			return nil, err
		}
	}

	return &StartResult{
		AttemptID:     attempt.ID,
		AttemptNumber: attempt.AttemptNumber,
		StartedAt:     attempt.StartedAt,
		Deadline:      attempt.ExpiresAt,
		Resumed:       !created,
	}, nil
}

func (s *AttemptService) admit(ctx context.Context, kind model.AssessmentKind, assessmentID, learnerID uint) (*model.Assessment, error) {
	a, avail, err := s.Gate.CheckByID(ctx, kind, assessmentID, learnerID)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		monitoring.GateRejections.WithLabelValues(string(avail.Reason)).Inc()
		logger.Log.Debug("Start rejected",
			zap.Uint("assessment_id", assessmentID),
			zap.Uint("learner_id", learnerID),
			zap.String("reason", string(avail.Reason)))
		return nil, avail.Err()
	}
	return a, nil
}

// ownedAttempt 读取作答并校验归属
func (s *AttemptService) ownedAttempt(ctx context.Context, learnerID uint, attemptID string) (*model.Attempt, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewError(util.KindNotFound, "attempt not found")
		}
		return nil, util.Persistence(err)
	}
	if attempt.LearnerID != learnerID {
		return nil, util.NewError(util.KindForbidden, "attempt belongs to another learner")
	}
	return attempt, nil
}

// SaveAnswer 自动保存单题作答：文本/单选为标量，多选为 id 列表
func (s *AttemptService) SaveAnswer(ctx context.Context, learnerID uint, attemptID string, questionID uint, raw json.RawMessage) (err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.SaveAnswer",
		attribute.String("attempt.id", attemptID),
		attribute.Int64("question.id", int64(questionID)))
	defer func() { tracing.EndSpan(span, err) }()

	attempt, err := s.ownedAttempt(ctx, learnerID, attemptID)
	if err != nil {
		return err
	}
	if attempt.Status != model.AttemptInProgress {
		return util.NewError(util.KindAttemptClosed, "attempt has already been %s", attempt.Status)
	}

	question, err := s.Assessments.FindQuestionByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.NewError(util.KindNotFound, "question not found")
		}
		return util.Persistence(err)
	}
	if question.AssessmentID != attempt.AssessmentID {
		return util.NewError(util.KindValidation, "question %d does not belong to this attempt", questionID)
	}

	value, err := grading.ParseValue(question.QuestionType, raw)
	if err != nil {
		return util.NewError(util.KindValidation, "%s", err.Error())
	}

	valid := make(map[uint]struct{}, len(question.Choices))
	for _, c := range question.Choices {
		valid[c.ID] = struct{}{}
	}
	for _, id := range grading.ChoiceIDs(value) {
		if _, ok := valid[id]; !ok {
			return util.NewError(util.KindValidation, "choice %d does not belong to question %d", id, questionID)
		}
	}

	return s.Ledger.RecordAnswer(ctx, attempt.ID, question, value)
}

// Submit 提交作答，重复提交返回首次结果
func (s *AttemptService) Submit(ctx context.Context, learnerID uint, attemptID string, timeTaken int) (res *SubmitResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.Submit", attribute.String("attempt.id", attemptID))
	defer func() { tracing.EndSpan(span, err) }()

	if timeTaken < 0 {
		return nil, util.NewError(util.KindValidation, "timeTaken must not be negative")
	}
	if _, err := s.ownedAttempt(ctx, learnerID, attemptID); err != nil {
		return nil, err
	}

	attempt, err := s.Ledger.Finalize(ctx, attemptID, timeTaken, model.AttemptSubmitted, learnerID)
	if err != nil {
		return nil, err
	}

	res = &SubmitResult{AttemptID: attempt.ID, Status: attempt.Status}
	if attempt.Score != nil {
		res.Score = *attempt.Score
	}
	if attempt.MaxScore != nil {
		res.MaxScore = *attempt.MaxScore
	}
	return res, nil
}

func (s *AttemptService) GetResult(ctx context.Context, learnerID uint, attemptID string) (*AttemptSummary, error) {
	attempt, err := s.ownedAttempt(ctx, learnerID, attemptID)
	if err != nil {
		return nil, err
	}
	a, err := s.Assessments.FindByID(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, util.Persistence(err)
	}
	summary := NewAttemptSummary(a, attempt)
	return &summary, nil
}
