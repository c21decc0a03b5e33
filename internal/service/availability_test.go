package service

import (
	"context"
	"testing"
	"time"

	"school_lms_backend/internal/model"
	"school_lms_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityGate_window(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createUser(t, "amy", model.Student)
	openAt := baseTime.Add(time.Hour)
	closeAt := baseTime.Add(3 * time.Hour)
	a := env.createAssessment(t, withWindow(openAt, closeAt))

	tests := []struct {
		name   string
		now    time.Time
		reason util.ErrorKind
	}{
		{name: "before open", now: openAt.Add(-time.Second), reason: util.KindNotYetOpen},
		{name: "exactly at open", now: openAt},
		{name: "inside window", now: openAt.Add(time.Hour)},
		{name: "exactly at close", now: closeAt},
		{name: "after close", now: closeAt.Add(time.Second), reason: util.KindClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.clock.Set(tt.now)
			avail, err := env.gate.Check(context.Background(), a, learner.ID)
			require.NoError(t, err)
			if tt.reason == "" {
				assert.True(t, avail.Available)
				assert.NoError(t, avail.Err())
				return
			}
			assert.False(t, avail.Available)
			assert.Equal(t, tt.reason, avail.Reason)
			assert.Equal(t, tt.reason, util.KindOf(avail.Err()))
		})
	}
}

func TestAvailabilityGate_messages(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createUser(t, "amy", model.Student)
	a := env.createAssessment(t, withWindow(baseTime.Add(time.Hour), baseTime.Add(2*time.Hour)))

	avail, err := env.gate.Check(context.Background(), a, learner.ID)
	require.NoError(t, err)
	assert.Contains(t, avail.Message, "Quiz is not yet open. Opens on ")
	assert.Contains(t, avail.Message, a.OpenAt.Local().Format(util.TimeFormat))

	env.clock.Set(baseTime.Add(3 * time.Hour))
	avail, err = env.gate.Check(context.Background(), a, learner.ID)
	require.NoError(t, err)
	assert.Contains(t, avail.Message, "Quiz has closed. Closed on ")
}

func TestAvailabilityGate_CheckByID_notFound(t *testing.T) {
	env := newTestEnv(t)
	learner := env.createUser(t, "amy", model.Student)
	exam := env.createAssessment(t, withKind(model.KindExam))

	_, avail, err := env.gate.CheckByID(context.Background(), model.KindQuiz, 9999, learner.ID)
	require.NoError(t, err)
	assert.Equal(t, util.KindNotFound, avail.Reason)

	// 类型不符同样视为不存在
	_, avail, err = env.gate.CheckByID(context.Background(), model.KindQuiz, exam.ID, learner.ID)
	require.NoError(t, err)
	assert.Equal(t, util.KindNotFound, avail.Reason)

	got, avail, err := env.gate.CheckByID(context.Background(), model.KindExam, exam.ID, learner.ID)
	require.NoError(t, err)
	assert.True(t, avail.Available)
	assert.Equal(t, exam.ID, got.ID)
}

func TestAvailabilityGate_counts_finalized_attempts_only(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := env.createUser(t, "amy", model.Student)
	p := env.createPaper(t, withAttempts(2))

	start, err := env.svc.Start(ctx, model.KindQuiz, p.assessment.ID, learner.ID)
	require.NoError(t, err)

	// 进行中的作答不计入次数
	avail, err := env.gate.Check(ctx, p.assessment, learner.ID)
	require.NoError(t, err)
	assert.True(t, avail.Available)

	_, err = env.svc.Submit(ctx, learner.ID, start.AttemptID, 60)
	require.NoError(t, err)
	avail, err = env.gate.Check(ctx, p.assessment, learner.ID)
	require.NoError(t, err)
	assert.True(t, avail.Available)

	start, err = env.svc.Start(ctx, model.KindQuiz, p.assessment.ID, learner.ID)
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, learner.ID, start.AttemptID, 60)
	require.NoError(t, err)

	avail, err = env.gate.Check(ctx, p.assessment, learner.ID)
	require.NoError(t, err)
	assert.False(t, avail.Available)
	assert.Equal(t, util.KindAttemptsExhausted, avail.Reason)
	assert.Equal(t, "You have used all 2 attempt(s) allowed for this quiz", avail.Message)

	// 其他学生不受影响
	other := env.createUser(t, "ben", model.Student)
	avail, err = env.gate.Check(ctx, p.assessment, other.ID)
	require.NoError(t, err)
	assert.True(t, avail.Available)
}
