package repository

import (
	"context"

	"school_lms_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) WithTx(tx *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: tx}
}

func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

func (r *AttemptRepository) Save(ctx context.Context, a *model.Attempt) error {
	return r.DB.WithContext(ctx).Save(a).Error
}

func (r *AttemptRepository) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error
	return &a, err
}

// FindByIDForUpdate 在事务内对作答行加锁，SQLite 无行锁，写事务本身串行
func (r *AttemptRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.Attempt, error) {
	var a model.Attempt
	db := r.DB.WithContext(ctx)
	if db.Dialector.Name() != "sqlite" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := db.Where("id = ?", id).First(&a).Error
	return &a, err
}

// FindActive 查找学生在该测评下进行中的作答
func (r *AttemptRepository) FindActive(ctx context.Context, assessmentID, learnerID uint) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).
		Where("active_key = ?", model.ActiveAttemptKey(assessmentID, learnerID)).
		First(&a).Error
	return &a, err
}

func (r *AttemptRepository) MaxAttemptNumber(ctx context.Context, assessmentID, learnerID uint) (int, error) {
	var max int
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("assessment_id = ? AND learner_id = ?", assessmentID, learnerID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&max).Error
	return max, err
}

// CountFinalized 统计已结束（submitted 或 timeout）的作答次数
func (r *AttemptRepository) CountFinalized(ctx context.Context, assessmentID, learnerID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("assessment_id = ? AND learner_id = ? AND status IN ?", assessmentID, learnerID,
			[]model.AttemptStatus{model.AttemptSubmitted, model.AttemptTimeout}).
		Count(&count).Error
	return count, err
}

func (r *AttemptRepository) ListByAssessment(ctx context.Context, assessmentID uint) ([]model.Attempt, error) {
	var list []model.Attempt
	err := r.DB.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("learner_id asc, attempt_number asc").
		Find(&list).Error
	return list, err
}

func (r *AttemptRepository) ListInProgress(ctx context.Context) ([]model.Attempt, error) {
	var list []model.Attempt
	err := r.DB.WithContext(ctx).
		Where("status = ?", model.AttemptInProgress).
		Order("expires_at asc").
		Find(&list).Error
	return list, err
}

func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID string) ([]model.Answer, error) {
	var answers []model.Answer
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("question_id asc, id asc").
		Find(&answers).Error
	return answers, err
}

// ReplaceAnswers 删除该题旧作答后写入新作答，后写覆盖先写
func (r *AttemptRepository) ReplaceAnswers(ctx context.Context, attemptID string, questionID uint, rows []model.Answer) error {
	db := r.DB.WithContext(ctx)
	if err := db.Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		Delete(&model.Answer{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Create(&rows).Error
}
