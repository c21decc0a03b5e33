package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"school_lms_backend/internal/grading"
	"school_lms_backend/internal/model"
	"school_lms_backend/internal/repository"
	"school_lms_backend/pkg/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	db    *gorm.DB
	clock *fakeClock

	users       *repository.UserRepository
	assessments *repository.AssessmentRepository
	attempts    *repository.AttemptRepository
	events      *repository.EventRepository

	policy    *AttemptPolicy
	gate      *AvailabilityGate
	ledger    *AttemptLedger
	svc       *AttemptService
	authoring *AssessmentService
	sweeper   *ExpirySweeper
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	clock := &fakeClock{now: baseTime}

	env := &testEnv{
		db:          db,
		clock:       clock,
		users:       repository.NewUserRepository(db),
		assessments: repository.NewAssessmentRepository(db),
		attempts:    repository.NewAttemptRepository(db),
		events:      repository.NewEventRepository(db),
		policy:      NewAttemptPolicy(30 * time.Second),
	}
	engine := grading.NewEngine()
	cache := repository.NewPaperCache(nil, 0)

	env.gate = NewAvailabilityGate(env.assessments, env.attempts)
	env.gate.Now = clock.Now
	env.ledger = NewAttemptLedger(db, env.assessments, env.attempts, env.events, engine, env.policy)
	env.ledger.Now = clock.Now
	env.svc = NewAttemptService(env.assessments, env.attempts, cache, env.gate, env.ledger)
	env.authoring = NewAssessmentService(db, env.assessments, env.attempts, env.events, env.users, cache, env.ledger, engine)
	env.sweeper = NewExpirySweeper(env.attempts, env.ledger)
	return env
}

func (e *testEnv) createUser(t *testing.T, name string, role model.UserRole) *model.User {
	t.Helper()
	u := &model.User{
		Name:     name,
		Email:    fmt.Sprintf("%s-%s@school.test", name, uuid.NewString()[:8]),
		Password: "x",
		Role:     role,
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

type assessmentOpt func(*AssessmentRequest)

func withAttempts(n int) assessmentOpt {
	return func(r *AssessmentRequest) { r.AttemptsAllowed = n }
}

func withTimeLimit(minutes int) assessmentOpt {
	return func(r *AssessmentRequest) { r.TimeLimitMinutes = &minutes }
}

func withWindow(openAt, closeAt time.Time) assessmentOpt {
	return func(r *AssessmentRequest) {
		r.OpenAt = openAt
		r.CloseAt = closeAt
	}
}

func withKind(kind model.AssessmentKind) assessmentOpt {
	return func(r *AssessmentRequest) { r.Kind = kind }
}

// createAssessment 默认：测验，开放窗口覆盖 baseTime 前后一天，作答 1 次，无限时
func (e *testEnv) createAssessment(t *testing.T, opts ...assessmentOpt) *model.Assessment {
	t.Helper()
	req := AssessmentRequest{
		Kind:            model.KindQuiz,
		Title:           "Fractions",
		AttemptsAllowed: 1,
		OpenAt:          baseTime.Add(-24 * time.Hour),
		CloseAt:         baseTime.Add(24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&req)
	}
	a, err := e.authoring.Create(context.Background(), 1, req)
	require.NoError(t, err)
	return a
}

// paperFixture 多选题 5 分（A、C 正确）与单选题 2 分（B 正确）
type paperFixture struct {
	assessment *model.Assessment
	checkbox   *model.Question
	mc         *model.Question
}

func (f paperFixture) choice(q *model.Question, text string) uint {
	for _, c := range q.Choices {
		if c.ChoiceText == text {
			return c.ID
		}
	}
	panic("no choice " + text)
}

func (e *testEnv) createPaper(t *testing.T, opts ...assessmentOpt) paperFixture {
	t.Helper()
	ctx := context.Background()
	a := e.createAssessment(t, opts...)

	checkbox, err := e.authoring.AddQuestion(ctx, a.ID, QuestionRequest{
		QuestionType: model.QuestionCheckbox,
		Prompt:       "Pick the fractions equal to one half",
		Score:        5,
		Choices: []ChoiceRequest{
			{ChoiceText: "A", IsCorrect: true},
			{ChoiceText: "B"},
			{ChoiceText: "C", IsCorrect: true},
		},
	})
	require.NoError(t, err)

	mc, err := e.authoring.AddQuestion(ctx, a.ID, QuestionRequest{
		QuestionType: model.QuestionMultipleChoice,
		Prompt:       "Which is larger?",
		Score:        2,
		Choices: []ChoiceRequest{
			{ChoiceText: "A"},
			{ChoiceText: "B", IsCorrect: true},
		},
	})
	require.NoError(t, err)

	return paperFixture{assessment: a, checkbox: checkbox, mc: mc}
}

func (e *testEnv) countAttempts(t *testing.T, assessmentID, learnerID uint, status model.AttemptStatus) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(&model.Attempt{}).Where("assessment_id = ? AND learner_id = ?", assessmentID, learnerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
