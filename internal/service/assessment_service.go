package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"school_lms_backend/internal/grading"
	"school_lms_backend/internal/model"
	"school_lms_backend/internal/repository"
	"school_lms_backend/internal/util"
	"school_lms_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AssessmentService 教师端：出题、查看作答、重新评分
type AssessmentService struct {
	DB          *gorm.DB
	Assessments *repository.AssessmentRepository
	Attempts    *repository.AttemptRepository
	Events      *repository.EventRepository
	Users       *repository.UserRepository
	Cache       *repository.PaperCache
	Ledger      *AttemptLedger
	Engine      *grading.Engine
}

func NewAssessmentService(
	db *gorm.DB,
	assessments *repository.AssessmentRepository,
	attempts *repository.AttemptRepository,
	events *repository.EventRepository,
	users *repository.UserRepository,
	cache *repository.PaperCache,
	ledger *AttemptLedger,
	engine *grading.Engine,
) *AssessmentService {
	return &AssessmentService{
		DB:          db,
		Assessments: assessments,
		Attempts:    attempts,
		Events:      events,
		Users:       users,
		Cache:       cache,
		Ledger:      ledger,
		Engine:      engine,
	}
}

type AssessmentRequest struct {
	Kind             model.AssessmentKind `json:"kind" binding:"required,assessmentkind"`
	LessonID         *uint                `json:"lessonId"`
	SubjectID        *uint                `json:"subjectId"`
	GradingPeriodID  *uint                `json:"gradingPeriodId"`
	Title            string               `json:"title" binding:"required,max=255"`
	Description      string               `json:"description"`
	TimeLimitMinutes *int                 `json:"timeLimitMinutes" binding:"omitempty,min=0"`
	AttemptsAllowed  int                  `json:"attemptsAllowed" binding:"required,min=1"`
	DisplayMode      model.DisplayMode    `json:"displayMode" binding:"omitempty,oneof=all paged"`
	OpenAt           time.Time            `json:"openAt" binding:"required"`
	CloseAt          time.Time            `json:"closeAt" binding:"required"`
}

type ChoiceRequest struct {
	ChoiceText string `json:"choiceText" binding:"required"`
	IsCorrect  bool   `json:"isCorrect"`
}

type QuestionRequest struct {
	QuestionType model.QuestionType `json:"questionType" binding:"required,questiontype"`
	Prompt       string             `json:"prompt" binding:"required"`
	Score        float64            `json:"score" binding:"min=0"`
	SortOrder    *int               `json:"sortOrder"`
	Choices      []ChoiceRequest    `json:"choices" binding:"omitempty,dive"`
}

func validationError(format string, args ...interface{}) error {
	return util.NewError(util.KindValidation, format, args...)
}

func (r AssessmentRequest) validate() error {
	if !r.Kind.Valid() {
		return validationError("kind must be quiz or exam")
	}
	if strings.TrimSpace(r.Title) == "" {
		return validationError("title is required")
	}
	if r.AttemptsAllowed < 1 {
		return validationError("attemptsAllowed must be at least 1")
	}
	if r.TimeLimitMinutes != nil && *r.TimeLimitMinutes < 0 {
		return validationError("timeLimitMinutes must not be negative")
	}
	if r.DisplayMode != "" && r.DisplayMode != model.DisplayAll && r.DisplayMode != model.DisplayPaged {
		return validationError("displayMode must be all or paged")
	}
	if !r.CloseAt.After(r.OpenAt) {
		return validationError("closeAt must be after openAt")
	}
	return nil
}

// validate 单选题恰有一个正确项，多选题至少一个，文本题不带选项
func (r QuestionRequest) validate() error {
	if !r.QuestionType.Valid() {
		return validationError("unknown question type %q", r.QuestionType)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return validationError("prompt is required")
	}
	if r.Score < 0 {
		return validationError("score must not be negative")
	}

	correct := 0
	for _, c := range r.Choices {
		if strings.TrimSpace(c.ChoiceText) == "" {
			return validationError("choice text is required")
		}
		if c.IsCorrect {
			correct++
		}
	}

	switch r.QuestionType {
	case model.QuestionText:
		if len(r.Choices) > 0 {
			return validationError("text questions take no choices")
		}
	case model.QuestionMultipleChoice:
		if len(r.Choices) < 2 {
			return validationError("multiple_choice questions need at least two choices")
		}
		if correct != 1 {
			return validationError("multiple_choice questions need exactly one correct choice")
		}
	case model.QuestionCheckbox:
		if len(r.Choices) < 2 {
			return validationError("checkbox questions need at least two choices")
		}
		if correct < 1 {
			return validationError("checkbox questions need at least one correct choice")
		}
	}
	return nil
}

func (s *AssessmentService) Create(ctx context.Context, creatorID uint, req AssessmentRequest) (*model.Assessment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	displayMode := req.DisplayMode
	if displayMode == "" {
		displayMode = model.DisplayAll
	}

	a := &model.Assessment{
		Kind:             req.Kind,
		LessonID:         req.LessonID,
		SubjectID:        req.SubjectID,
		GradingPeriodID:  req.GradingPeriodID,
		CreatorID:        creatorID,
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		TimeLimitMinutes: req.TimeLimitMinutes,
		AttemptsAllowed:  req.AttemptsAllowed,
		DisplayMode:      displayMode,
		OpenAt:           req.OpenAt,
		CloseAt:          req.CloseAt,
	}
	if err := s.Assessments.Create(ctx, a); err != nil {
		return nil, util.Persistence(err)
	}
	logger.Log.Info("Assessment created",
		zap.Uint("assessment_id", a.ID),
		zap.String("kind", string(a.Kind)),
		zap.Uint("creator_id", creatorID))
	return a, nil
}

func (s *AssessmentService) findAssessment(ctx context.Context, id uint) (*model.Assessment, error) {
	a, err := s.Assessments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewError(util.KindNotFound, "assessment not found")
		}
		return nil, util.Persistence(err)
	}
	return a, nil
}

func (s *AssessmentService) List(ctx context.Context, kind model.AssessmentKind, creatorID uint) ([]model.Assessment, error) {
	list, err := s.Assessments.List(ctx, kind, creatorID)
	if err != nil {
		return nil, util.Persistence(err)
	}
	return list, nil
}

// Get 教师视图，包含正确答案
func (s *AssessmentService) Get(ctx context.Context, id uint) (*model.Assessment, error) {
	a, err := s.findAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	qs, err := s.Assessments.ListQuestions(ctx, id)
	if err != nil {
		return nil, util.Persistence(err)
	}
	a.Questions = qs
	return a, nil
}

func (s *AssessmentService) Delete(ctx context.Context, id uint) error {
	if _, err := s.findAssessment(ctx, id); err != nil {
		return err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.Assessments.WithTx(tx).Delete(ctx, id)
	})
	if err != nil {
		return util.Persistence(err)
	}
	s.invalidate(ctx, id)
	logger.Log.Info("Assessment deleted", zap.Uint("assessment_id", id))
	return nil
}

func (s *AssessmentService) AddQuestion(ctx context.Context, assessmentID uint, req QuestionRequest) (*model.Question, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := s.findAssessment(ctx, assessmentID); err != nil {
		return nil, err
	}

	q := &model.Question{
		AssessmentID: assessmentID,
		QuestionType: req.QuestionType,
		Prompt:       req.Prompt,
		Score:        req.Score,
	}
	for i, c := range req.Choices {
		q.Choices = append(q.Choices, model.Choice{
			ChoiceText: c.ChoiceText,
			IsCorrect:  c.IsCorrect,
			SortOrder:  i + 1,
		})
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.Assessments.WithTx(tx)
		if req.SortOrder != nil {
			q.SortOrder = *req.SortOrder
		} else {
			count, err := repo.CountQuestions(ctx, assessmentID)
			if err != nil {
				return err
			}
			q.SortOrder = int(count) + 1
		}
		if err := repo.CreateQuestion(ctx, q); err != nil {
			return err
		}
		_, err := repo.RefreshMaxScore(ctx, assessmentID)
		return err
	})
	if err != nil {
		return nil, util.Persistence(err)
	}
	s.invalidate(ctx, assessmentID)
	return q, nil
}

func (s *AssessmentService) DeleteQuestion(ctx context.Context, questionID uint) error {
	q, err := s.Assessments.FindQuestionByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.NewError(util.KindNotFound, "question not found")
		}
		return util.Persistence(err)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.Assessments.WithTx(tx)
		if err := repo.DeleteQuestion(ctx, questionID); err != nil {
			return err
		}
		_, err := repo.RefreshMaxScore(ctx, q.AssessmentID)
		return err
	})
	if err != nil {
		return util.Persistence(err)
	}
	s.invalidate(ctx, q.AssessmentID)
	return nil
}

func (s *AssessmentService) invalidate(ctx context.Context, assessmentID uint) {
	if err := s.Cache.Invalidate(ctx, assessmentID); err != nil {
		logger.Log.Warn("Paper cache invalidation failed", zap.Uint("assessment_id", assessmentID), zap.Error(err))
	}
}

// ListAttempts 某测评的全部作答，附学生姓名
func (s *AssessmentService) ListAttempts(ctx context.Context, assessmentID uint) ([]AttemptSummary, error) {
	a, err := s.findAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.Attempts.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, util.Persistence(err)
	}

	ids := make([]uint, 0, len(attempts))
	seen := make(map[uint]bool)
	for _, at := range attempts {
		if !seen[at.LearnerID] {
			seen[at.LearnerID] = true
			ids = append(ids, at.LearnerID)
		}
	}
	users, err := s.Users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, util.Persistence(err)
	}
	byID := make(map[uint]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]AttemptSummary, 0, len(attempts))
	for i := range attempts {
		summary := NewAttemptSummary(a, &attempts[i])
		if u, ok := byID[attempts[i].LearnerID]; ok {
			summary.LearnerName = u.Name
			summary.LearnerEmail = u.Email
		}
		out = append(out, summary)
	}
	return out, nil
}

type ReviewChoice struct {
	ID         uint   `json:"id"`
	ChoiceText string `json:"choiceText"`
	IsCorrect  bool   `json:"isCorrect"`
	Selected   bool   `json:"selected"`
}

type ReviewQuestion struct {
	ID           uint               `json:"id"`
	QuestionType model.QuestionType `json:"questionType"`
	Prompt       string             `json:"prompt"`
	Answer       interface{}        `json:"answer,omitempty"`
	Points       float64            `json:"points"`
	MaxPoints    float64            `json:"maxPoints"`
	Choices      []ReviewChoice     `json:"choices,omitempty"`
}

type AttemptDetail struct {
	AttemptSummary
	Questions []ReviewQuestion     `json:"questions"`
	Events    []model.AttemptEvent `json:"events"`
}

// AttemptDetail 逐题得分按当前作答重新推导
func (s *AssessmentService) AttemptDetail(ctx context.Context, attemptID string) (*AttemptDetail, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NewError(util.KindNotFound, "attempt not found")
		}
		return nil, util.Persistence(err)
	}
	a, err := s.findAssessment(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}
	qs, err := s.Assessments.ListQuestions(ctx, a.ID)
	if err != nil {
		return nil, util.Persistence(err)
	}
	answers, err := s.Attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, util.Persistence(err)
	}
	events, err := s.Events.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, util.Persistence(err)
	}

	values := grading.ValuesFromAnswers(qs, answers)
	result := s.Engine.Score(grading.KeysFromQuestions(qs), values)

	detail := &AttemptDetail{
		AttemptSummary: NewAttemptSummary(a, attempt),
		Questions:      make([]ReviewQuestion, 0, len(qs)),
		Events:         events,
	}
	if u, err := s.Users.FindByID(ctx, attempt.LearnerID); err == nil {
		detail.LearnerName = u.Name
		detail.LearnerEmail = u.Email
	}

	for i, q := range qs {
		selected := make(map[uint]bool)
		for _, id := range grading.ChoiceIDs(values[q.ID]) {
			selected[id] = true
		}
		rq := ReviewQuestion{
			ID:           q.ID,
			QuestionType: q.QuestionType,
			Prompt:       q.Prompt,
			Answer:       grading.Export(values[q.ID]),
			Points:       result.Questions[i].Points,
			MaxPoints:    result.Questions[i].MaxPoints,
		}
		for _, c := range q.Choices {
			rq.Choices = append(rq.Choices, ReviewChoice{
				ID:         c.ID,
				ChoiceText: c.ChoiceText,
				IsCorrect:  c.IsCorrect,
				Selected:   selected[c.ID],
			})
		}
		detail.Questions = append(detail.Questions, rq)
	}
	return detail, nil
}

func (s *AssessmentService) Regrade(ctx context.Context, actorID uint, attemptID string) (*AttemptSummary, error) {
	attempt, err := s.Ledger.Regrade(ctx, attemptID, actorID)
	if err != nil {
		return nil, err
	}
	a, err := s.findAssessment(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}
	summary := NewAttemptSummary(a, attempt)
	return &summary, nil
}
