package repository

import (
	"context"
	"encoding/json"

	"school_lms_backend/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventRepository struct {
	DB *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{DB: db}
}

func (r *EventRepository) WithTx(tx *gorm.DB) *EventRepository {
	return &EventRepository{DB: tx}
}

// Append 追加一条作答事件，payload 序列化为 JSON
func (r *EventRepository) Append(ctx context.Context, attemptID, eventType string, actorID uint, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Create(&model.AttemptEvent{
		AttemptID: attemptID,
		Type:      eventType,
		ActorID:   actorID,
		Payload:   datatypes.JSON(raw),
	}).Error
}

func (r *EventRepository) ListByAttempt(ctx context.Context, attemptID string) ([]model.AttemptEvent, error) {
	var events []model.AttemptEvent
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("id asc").
		Find(&events).Error
	return events, err
}
