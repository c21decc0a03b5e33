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

func TestAssessmentService_Create_validation(t *testing.T) {
	env := newTestEnv(t)
	valid := AssessmentRequest{
		Kind:            model.KindExam,
		Title:           "Midterm",
		AttemptsAllowed: 1,
		OpenAt:          baseTime,
		CloseAt:         baseTime.Add(time.Hour),
	}
	negative := -5

	tests := []struct {
		name   string
		mutate func(r *AssessmentRequest)
	}{
		{name: "unknown kind", mutate: func(r *AssessmentRequest) { r.Kind = "survey" }},
		{name: "blank title", mutate: func(r *AssessmentRequest) { r.Title = "   " }},
		{name: "zero attempts", mutate: func(r *AssessmentRequest) { r.AttemptsAllowed = 0 }},
		{name: "negative time limit", mutate: func(r *AssessmentRequest) { r.TimeLimitMinutes = &negative }},
		{name: "unknown display mode", mutate: func(r *AssessmentRequest) { r.DisplayMode = "carousel" }},
		{name: "close equals open", mutate: func(r *AssessmentRequest) { r.CloseAt = r.OpenAt }},
		{name: "close before open", mutate: func(r *AssessmentRequest) { r.CloseAt = r.OpenAt.Add(-time.Minute) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := env.authoring.Create(context.Background(), 1, req)
			assert.ErrorIs(t, err, util.ErrValidation)
		})
	}

	a, err := env.authoring.Create(context.Background(), 7, valid)
	require.NoError(t, err)
	assert.Equal(t, model.DisplayAll, a.DisplayMode)
	assert.Equal(t, uint(7), a.CreatorID)
}

func TestAssessmentService_AddQuestion_validation(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssessment(t)

	two := func(correct ...bool) []ChoiceRequest {
		out := []ChoiceRequest{{ChoiceText: "x"}, {ChoiceText: "y"}}
		for i, c := range correct {
			out[i].IsCorrect = c
		}
		return out
	}

	tests := []struct {
		name string
		req  QuestionRequest
	}{
		{name: "unknown type", req: QuestionRequest{QuestionType: "essay", Prompt: "p", Score: 1}},
		{name: "blank prompt", req: QuestionRequest{QuestionType: model.QuestionText, Prompt: " ", Score: 1}},
		{name: "negative score", req: QuestionRequest{QuestionType: model.QuestionText, Prompt: "p", Score: -1}},
		{name: "text with choices", req: QuestionRequest{QuestionType: model.QuestionText, Prompt: "p", Score: 1, Choices: two(true)}},
		{name: "multiple choice with one choice", req: QuestionRequest{QuestionType: model.QuestionMultipleChoice, Prompt: "p", Score: 1, Choices: []ChoiceRequest{{ChoiceText: "x", IsCorrect: true}}}},
		{name: "multiple choice without correct", req: QuestionRequest{QuestionType: model.QuestionMultipleChoice, Prompt: "p", Score: 1, Choices: two()}},
		{name: "multiple choice with two correct", req: QuestionRequest{QuestionType: model.QuestionMultipleChoice, Prompt: "p", Score: 1, Choices: two(true, true)}},
		{name: "checkbox without correct", req: QuestionRequest{QuestionType: model.QuestionCheckbox, Prompt: "p", Score: 1, Choices: two()}},
		{name: "blank choice text", req: QuestionRequest{QuestionType: model.QuestionCheckbox, Prompt: "p", Score: 1, Choices: []ChoiceRequest{{ChoiceText: "x", IsCorrect: true}, {ChoiceText: ""}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.authoring.AddQuestion(context.Background(), a.ID, tt.req)
			assert.ErrorIs(t, err, util.ErrValidation)
		})
	}

	_, err := env.authoring.AddQuestion(context.Background(), 9999, QuestionRequest{QuestionType: model.QuestionText, Prompt: "p", Score: 1})
	assert.ErrorIs(t, err, util.ErrNotFound)

	count, err := env.assessments.CountQuestions(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAssessmentService_questionsKeepMaxScore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createPaper(t)

	got, err := env.authoring.Get(ctx, p.assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got.MaxScore)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, p.checkbox.ID, got.Questions[0].ID)
	assert.Equal(t, 1, got.Questions[0].SortOrder)
	assert.Equal(t, 2, got.Questions[1].SortOrder)
	assert.True(t, got.Questions[0].Choices[0].IsCorrect)
	assert.False(t, got.Questions[0].Choices[1].IsCorrect)

	require.NoError(t, env.authoring.DeleteQuestion(ctx, p.checkbox.ID))
	got, err = env.authoring.Get(ctx, p.assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.MaxScore)
	assert.Len(t, got.Questions, 1)

	assert.ErrorIs(t, env.authoring.DeleteQuestion(ctx, p.checkbox.ID), util.ErrNotFound)
}

func TestAssessmentService_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createAssessment(t)
	env.createAssessment(t, withKind(model.KindExam))
	_, err := env.authoring.Create(ctx, 42, AssessmentRequest{
		Kind: model.KindQuiz, Title: "Other", AttemptsAllowed: 1,
		OpenAt: baseTime, CloseAt: baseTime.Add(time.Hour),
	})
	require.NoError(t, err)

	all, err := env.authoring.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	quizzes, err := env.authoring.List(ctx, model.KindQuiz, 0)
	require.NoError(t, err)
	assert.Len(t, quizzes, 2)

	mine, err := env.authoring.List(ctx, model.KindQuiz, 42)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Other", mine[0].Title)
}

func TestAssessmentService_review(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	amy := env.createUser(t, "amy", model.Student)
	ben := env.createUser(t, "ben", model.Student)
	p := env.createPaper(t)

	start, err := env.svc.Start(ctx, model.KindQuiz, p.assessment.ID, amy.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.SaveAnswer(ctx, amy.ID, start.AttemptID, p.mc.ID, scalar(p.choice(p.mc, "B"))))
	_, err = env.svc.Submit(ctx, amy.ID, start.AttemptID, 50)
	require.NoError(t, err)
	_, err = env.svc.Start(ctx, model.KindQuiz, p.assessment.ID, ben.ID)
	require.NoError(t, err)

	list, err := env.authoring.ListAttempts(ctx, p.assessment.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	byLearner := map[uint]AttemptSummary{}
	for _, s := range list {
		byLearner[s.LearnerID] = s
	}
	assert.Equal(t, amy.Name, byLearner[amy.ID].LearnerName)
	assert.Equal(t, model.AttemptSubmitted, byLearner[amy.ID].Status)
	assert.Equal(t, model.AttemptInProgress, byLearner[ben.ID].Status)
	assert.Nil(t, byLearner[ben.ID].Score)

	detail, err := env.authoring.AttemptDetail(ctx, start.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, amy.Email, detail.LearnerEmail)
	require.Len(t, detail.Questions, 2)
	assert.Equal(t, 0.0, detail.Questions[0].Points)
	assert.Equal(t, 5.0, detail.Questions[0].MaxPoints)
	assert.Equal(t, 2.0, detail.Questions[1].Points)
	for _, c := range detail.Questions[1].Choices {
		assert.Equal(t, c.ID == p.choice(p.mc, "B"), c.Selected)
	}
	assert.Len(t, detail.Events, 2)

	_, err = env.authoring.AttemptDetail(ctx, "missing")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestAssessmentService_Regrade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := env.createUser(t, "amy", model.Student)
	p := env.createPaper(t)

	start, err := env.svc.Start(ctx, model.KindQuiz, p.assessment.ID, learner.ID)
	require.NoError(t, err)

	_, err = env.authoring.Regrade(ctx, 1, start.AttemptID)
	assert.ErrorIs(t, err, util.ErrValidation)

	a, c := p.choice(p.checkbox, "A"), p.choice(p.checkbox, "C")
	require.NoError(t, env.svc.SaveAnswer(ctx, learner.ID, start.AttemptID, p.checkbox.ID, ids(a, c)))
	res, err := env.svc.Submit(ctx, learner.ID, start.AttemptID, 0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.Score)

	// 删除题目后重算，分数与满分随之变化
	require.NoError(t, env.authoring.DeleteQuestion(ctx, p.checkbox.ID))
	summary, err := env.authoring.Regrade(ctx, 1, start.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, *summary.Score)
	assert.Equal(t, 2.0, *summary.MaxScore)
	assert.Equal(t, model.AttemptSubmitted, summary.Status)

	events, err := env.events.ListByAttempt(ctx, start.AttemptID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, model.EventAttemptRegraded, last.Type)
	assert.Equal(t, uint(1), last.ActorID)
	assert.JSONEq(t, `{"previousScore":5,"score":0,"maxScore":2}`, string(last.Payload))
}

func TestAssessmentService_Delete_cascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	learner := env.createUser(t, "amy", model.Student)
	p := env.createPaper(t)
	keep := env.createPaper(t)

	for _, a := range []*model.Assessment{p.assessment, keep.assessment} {
		start, err := env.svc.Start(ctx, model.KindQuiz, a.ID, learner.ID)
		require.NoError(t, err)
		_, err = env.svc.Submit(ctx, learner.ID, start.AttemptID, 0)
		require.NoError(t, err)
	}
	_, err := env.svc.Start(ctx, model.KindQuiz, p.assessment.ID, learner.ID)
	require.ErrorIs(t, err, util.ErrAttemptsExhausted)

	require.NoError(t, env.authoring.Delete(ctx, p.assessment.ID))

	_, err = env.authoring.Get(ctx, p.assessment.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)
	assert.Equal(t, int64(0), env.countAttempts(t, p.assessment.ID, learner.ID, ""))

	var questions, choices int64
	require.NoError(t, env.db.Unscoped().Model(&model.Question{}).Where("assessment_id = ?", p.assessment.ID).Count(&questions).Error)
	require.NoError(t, env.db.Unscoped().Model(&model.Choice{}).Where("question_id IN ?", []uint{p.checkbox.ID, p.mc.ID}).Count(&choices).Error)
	assert.Zero(t, questions)
	assert.Zero(t, choices)

	// 其他测评不受影响
	assert.Equal(t, int64(1), env.countAttempts(t, keep.assessment.ID, learner.ID, ""))
	var events int64
	require.NoError(t, env.db.Model(&model.AttemptEvent{}).Count(&events).Error)
	assert.Equal(t, int64(2), events)

	assert.ErrorIs(t, env.authoring.Delete(ctx, p.assessment.ID), util.ErrNotFound)
}
