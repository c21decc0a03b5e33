package model

import "time"

// AssessmentKind 测验与考试共用一套作答引擎，仅以 kind 区分
type AssessmentKind string

const (
	KindQuiz AssessmentKind = "quiz"
	KindExam AssessmentKind = "exam"
)

func (k AssessmentKind) Valid() bool {
	return k == KindQuiz || k == KindExam
}

// Label 面向学生的提示文案
func (k AssessmentKind) Label() string {
	if k == KindExam {
		return "Exam"
	}
	return "Quiz"
}

type DisplayMode string

const (
	DisplayAll   DisplayMode = "all"
	DisplayPaged DisplayMode = "paged"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionCheckbox       QuestionType = "checkbox"
	QuestionText           QuestionType = "text"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionCheckbox, QuestionText:
		return true
	}
	return false
}

// swagger:model Assessment
type Assessment struct {
	BaseModel
	Kind             AssessmentKind `gorm:"size:10;index;not null" json:"kind"`
	LessonID         *uint          `gorm:"index" json:"lessonId,omitempty"`
	SubjectID        *uint          `gorm:"index" json:"subjectId,omitempty"`
	GradingPeriodID  *uint          `gorm:"index" json:"gradingPeriodId,omitempty"`
	CreatorID        uint           `gorm:"index" json:"creatorId"`
	Title            string         `gorm:"size:255;not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	MaxScore         float64        `gorm:"default:0" json:"maxScore"`
	TimeLimitMinutes *int           `json:"timeLimitMinutes,omitempty"`
	AttemptsAllowed  int            `gorm:"not null;default:1" json:"attemptsAllowed"`
	DisplayMode      DisplayMode    `gorm:"size:10;default:'all'" json:"displayMode"`
	OpenAt           time.Time      `gorm:"not null" json:"openAt"`
	CloseAt          time.Time      `gorm:"not null" json:"closeAt"`
	Questions        []Question     `gorm:"foreignKey:AssessmentID" json:"questions,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// swagger:model Question
type Question struct {
	BaseModel
	AssessmentID uint         `gorm:"index;not null" json:"assessmentId"`
	QuestionType QuestionType `gorm:"size:20;not null" json:"questionType"`
	Prompt       string       `gorm:"type:text;not null" json:"prompt"`
	Score        float64      `gorm:"not null;default:0" json:"score"`
	SortOrder    int          `gorm:"default:0" json:"sortOrder"`
	Choices      []Choice     `gorm:"foreignKey:QuestionID" json:"choices,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// swagger:model Choice
type Choice struct {
	BaseModel
	QuestionID uint   `gorm:"index;not null" json:"questionId"`
	ChoiceText string `gorm:"type:text;not null" json:"choiceText"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect"`
	SortOrder  int    `gorm:"default:0" json:"sortOrder"`
}

func (Choice) TableName() string {
	return "choices"
}
