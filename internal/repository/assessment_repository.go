package repository

import (
	"context"

	"school_lms_backend/internal/model"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

// WithTx 返回绑定到事务的仓库
func (r *AssessmentRepository) WithTx(tx *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: tx}
}

func (r *AssessmentRepository) Create(ctx context.Context, a *model.Assessment) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

func (r *AssessmentRepository) FindByID(ctx context.Context, id uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.WithContext(ctx).First(&a, id).Error
	return &a, err
}

func (r *AssessmentRepository) List(ctx context.Context, kind model.AssessmentKind, creatorID uint) ([]model.Assessment, error) {
	var list []model.Assessment
	query := r.DB.WithContext(ctx).Model(&model.Assessment{})
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if creatorID > 0 {
		query = query.Where("creator_id = ?", creatorID)
	}
	err := query.Order("open_at desc, id desc").Find(&list).Error
	return list, err
}

// ListQuestions 按 sort_order 返回题目及选项
func (r *AssessmentRepository) ListQuestions(ctx context.Context, assessmentID uint) ([]model.Question, error) {
	var qs []model.Question
	err := r.DB.WithContext(ctx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order asc, id asc")
		}).
		Where("assessment_id = ?", assessmentID).
		Order("sort_order asc, id asc").
		Find(&qs).Error
	return qs, err
}

func (r *AssessmentRepository) CountQuestions(ctx context.Context, assessmentID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Question{}).
		Where("assessment_id = ?", assessmentID).
		Count(&count).Error
	return count, err
}

func (r *AssessmentRepository) FindQuestionByID(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.WithContext(ctx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order asc, id asc")
		}).
		First(&q, id).Error
	return &q, err
}

// CreateQuestion 同时写入选项
func (r *AssessmentRepository) CreateQuestion(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Create(q).Error
}

// DeleteQuestion 物理删除题目、选项及相关作答
func (r *AssessmentRepository) DeleteQuestion(ctx context.Context, id uint) error {
	db := r.DB.WithContext(ctx).Unscoped().Session(&gorm.Session{})
	if err := db.Where("question_id = ?", id).Delete(&model.Answer{}).Error; err != nil {
		return err
	}
	if err := db.Where("question_id = ?", id).Delete(&model.Choice{}).Error; err != nil {
		return err
	}
	return db.Delete(&model.Question{}, id).Error
}

// RefreshMaxScore 以题目分值之和更新测评满分
func (r *AssessmentRepository) RefreshMaxScore(ctx context.Context, assessmentID uint) (float64, error) {
	var total float64
	err := r.DB.WithContext(ctx).Model(&model.Question{}).
		Where("assessment_id = ?", assessmentID).
		Select("COALESCE(SUM(score), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	err = r.DB.WithContext(ctx).Model(&model.Assessment{}).
		Where("id = ?", assessmentID).
		Update("max_score", total).Error
	return total, err
}

// Delete 级联删除题目、选项、作答记录与事件
func (r *AssessmentRepository) Delete(ctx context.Context, id uint) error {
	db := r.DB.WithContext(ctx).Unscoped().Session(&gorm.Session{})

	attemptIDs := db.Model(&model.Attempt{}).Select("id").Where("assessment_id = ?", id)
	questionIDs := db.Model(&model.Question{}).Select("id").Where("assessment_id = ?", id)

	if err := db.Where("attempt_id IN (?)", attemptIDs).Delete(&model.AttemptEvent{}).Error; err != nil {
		return err
	}
	if err := db.Where("attempt_id IN (?)", attemptIDs).Delete(&model.Answer{}).Error; err != nil {
		return err
	}
	if err := db.Where("assessment_id = ?", id).Delete(&model.Attempt{}).Error; err != nil {
		return err
	}
	if err := db.Where("question_id IN (?)", questionIDs).Delete(&model.Choice{}).Error; err != nil {
		return err
	}
	if err := db.Where("assessment_id = ?", id).Delete(&model.Question{}).Error; err != nil {
		return err
	}
	return db.Delete(&model.Assessment{}, id).Error
}
