package service

import (
	"context"
	"testing"
	"time"

	"school_lms_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpirySweeper_SweepOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	amy := env.createUser(t, "amy", model.Student)
	ben := env.createUser(t, "ben", model.Student)
	short := env.createPaper(t, withTimeLimit(5))
	long := env.createPaper(t, withTimeLimit(120))

	overdue, err := env.svc.Start(ctx, model.KindQuiz, short.assessment.ID, amy.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.SaveAnswer(ctx, amy.ID, overdue.AttemptID, short.mc.ID, scalar(short.choice(short.mc, "B"))))
	running, err := env.svc.Start(ctx, model.KindQuiz, long.assessment.ID, ben.ID)
	require.NoError(t, err)

	// 未超过宽限期不处理
	env.clock.Advance(5*time.Minute + 10*time.Second)
	n, err := env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.clock.Advance(time.Minute)
	n, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	timedOut, err := env.attempts.FindByID(ctx, overdue.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptTimeout, timedOut.Status)
	assert.Nil(t, timedOut.ActiveKey)
	require.NotNil(t, timedOut.Score)
	assert.Equal(t, 2.0, *timedOut.Score)
	assert.True(t, timedOut.FinishedAt.Equal(overdue.Deadline))

	events, err := env.events.ListByAttempt(ctx, overdue.AttemptID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventAttemptTimedOut, events[1].Type)
	assert.Zero(t, events[1].ActorID)

	still, err := env.attempts.FindByID(ctx, running.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptInProgress, still.Status)

	n, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpirySweeper_graceIsHotReloadable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := env.createUser(t, "amy", model.Student)
	p := env.createPaper(t, withTimeLimit(5))

	_, err := env.svc.Start(ctx, model.KindQuiz, p.assessment.ID, learner.ID)
	require.NoError(t, err)

	env.clock.Advance(6 * time.Minute)
	env.policy.SetGrace(5 * time.Minute)
	n, err := env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.policy.SetGrace(0)
	n, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExpirySweeper_Start(t *testing.T) {
	env := newTestEnv(t)

	assert.Error(t, env.sweeper.Start("not a schedule"))

	require.NoError(t, env.sweeper.Start("@every 1h"))
	env.sweeper.Stop()
}
