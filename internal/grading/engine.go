package grading

import (
	"strings"

	"school_lms_backend/internal/model"
)

// Key 单题评分所需的最小视图
type Key struct {
	QuestionID uint
	Type       model.QuestionType
	Points     float64
	Correct    []uint
}

func KeyFromQuestion(q model.Question) Key {
	k := Key{QuestionID: q.ID, Type: q.QuestionType, Points: q.Score}
	for _, c := range q.Choices {
		if c.IsCorrect {
			k.Correct = append(k.Correct, c.ID)
		}
	}
	return k
}

func KeysFromQuestions(questions []model.Question) []Key {
	keys := make([]Key, 0, len(questions))
	for _, q := range questions {
		keys = append(keys, KeyFromQuestion(q))
	}
	return keys
}

type QuestionResult struct {
	QuestionID uint    `json:"questionId"`
	Points     float64 `json:"points"`
	MaxPoints  float64 `json:"maxPoints"`
	Answered   bool    `json:"answered"`
}

type Result struct {
	Total     float64          `json:"total"`
	Max       float64          `json:"max"`
	Questions []QuestionResult `json:"questions"`
}

// Strategy 单一题型的评分规则，作答为 nil 或类型不符时得 0 分
type Strategy interface {
	Grade(k Key, v Value) float64
}

type Engine struct {
	strategies map[model.QuestionType]Strategy
}

func NewEngine() *Engine {
	return &Engine{
		strategies: map[model.QuestionType]Strategy{
			model.QuestionText:           textStrategy{},
			model.QuestionMultipleChoice: singleChoiceStrategy{},
			model.QuestionCheckbox:       multiChoiceStrategy{},
		},
	}
}

// Score 纯函数：总分为各题得分之和，满分为各题分值之和
func (e *Engine) Score(keys []Key, answers map[uint]Value) Result {
	res := Result{Questions: make([]QuestionResult, 0, len(keys))}
	for _, k := range keys {
		v, answered := answers[k.QuestionID]
		qr := QuestionResult{QuestionID: k.QuestionID, MaxPoints: k.Points, Answered: answered && v != nil}
		if s, ok := e.strategies[k.Type]; ok && qr.Answered {
			qr.Points = s.Grade(k, v)
		}
		res.Total += qr.Points
		res.Max += k.Points
		res.Questions = append(res.Questions, qr)
	}
	return res
}

type textStrategy struct{}

func (textStrategy) Grade(k Key, v Value) float64 {
	t, ok := v.(Text)
	if !ok || strings.TrimSpace(string(t)) == "" {
		return 0
	}
	return k.Points
}

// 正确项多于一个时命中任意一个即得分
type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(k Key, v Value) float64 {
	c, ok := v.(SingleChoice)
	if !ok {
		return 0
	}
	for _, id := range k.Correct {
		if uint(c) == id {
			return k.Points
		}
	}
	return 0
}

// 多选题要求与正确集合完全一致，不设部分分
type multiChoiceStrategy struct{}

func (multiChoiceStrategy) Grade(k Key, v Value) float64 {
	m, ok := v.(MultiChoice)
	if !ok || len(m) == 0 {
		return 0
	}
	if setEqual(NewMultiChoice(k.Correct...), NewMultiChoice(m...)) {
		return k.Points
	}
	return 0
}

func setEqual(a, b MultiChoice) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
