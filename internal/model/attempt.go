package model

import (
	"fmt"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptTimeout    AttemptStatus = "timeout"
)

// Finalized submitted 与 timeout 均为终态
func (s AttemptStatus) Finalized() bool {
	return s == AttemptSubmitted || s == AttemptTimeout
}

// swagger:model Attempt
type Attempt struct {
	UUIDBase
	AssessmentID  uint          `gorm:"not null;uniqueIndex:idx_attempt_number,priority:1" json:"assessmentId"`
	LearnerID     uint          `gorm:"not null;index;uniqueIndex:idx_attempt_number,priority:2" json:"learnerId"`
	AttemptNumber int           `gorm:"not null;uniqueIndex:idx_attempt_number,priority:3" json:"attemptNumber"`
	Status        AttemptStatus `gorm:"size:20;not null;index" json:"status"`
	// ActiveKey 仅在 in_progress 时非空，唯一索引保证同一学生同一测评只有一个进行中的作答
	ActiveKey  *string    `gorm:"size:64;uniqueIndex" json:"-"`
	StartedAt  time.Time  `json:"startedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Score      *float64   `json:"score,omitempty"`
	MaxScore   *float64   `json:"maxScore,omitempty"`
	TimeTaken  *int       `json:"timeTaken,omitempty"` // seconds
	Answers    []Answer   `gorm:"foreignKey:AttemptID" json:"answers,omitempty"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func ActiveAttemptKey(assessmentID, learnerID uint) string {
	return fmt.Sprintf("%d:%d", assessmentID, learnerID)
}

// Answer 文本题与单选题每题一行，多选题每个选中项一行
// swagger:model Answer
type Answer struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AttemptID  string    `gorm:"type:varchar(36);not null;index:idx_answer_attempt_question,priority:1" json:"attemptId"`
	QuestionID uint      `gorm:"not null;index:idx_answer_attempt_question,priority:2" json:"questionId"`
	ChoiceID   *uint     `json:"choiceId,omitempty"`
	AnswerText *string   `gorm:"type:text" json:"answerText,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Answer) TableName() string {
	return "answers"
}
