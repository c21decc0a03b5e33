package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptSubmitted = "attempt.submitted"
	EventAttemptTimedOut  = "attempt.timed_out"
	EventAttemptRegraded  = "attempt.regraded"
)

// AttemptEvent 作答状态变更日志，只追加
// swagger:model AttemptEvent
type AttemptEvent struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	AttemptID string         `gorm:"type:varchar(36);not null;index" json:"attemptId"`
	Type      string         `gorm:"size:50;not null" json:"type"`
	ActorID   uint           `json:"actorId"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (AttemptEvent) TableName() string {
	return "attempt_events"
}
