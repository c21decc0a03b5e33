package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"school_lms_backend/internal/model"
	"school_lms_backend/internal/repository"
	"school_lms_backend/internal/util"

	"gorm.io/gorm"
)

// Availability 准入检查结果，失败以值返回而非错误
type Availability struct {
	Available bool
	Reason    util.ErrorKind
	Message   string
}

func (a Availability) Err() error {
	if a.Available {
		return nil
	}
	return util.NewError(a.Reason, "%s", a.Message)
}

func unavailable(reason util.ErrorKind, format string, args ...interface{}) Availability {
	return Availability{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AvailabilityGate 判断学生能否开始或继续作答，只读
type AvailabilityGate struct {
	Assessments *repository.AssessmentRepository
	Attempts    *repository.AttemptRepository
	Now         Clock
}

func NewAvailabilityGate(assessments *repository.AssessmentRepository, attempts *repository.AttemptRepository) *AvailabilityGate {
	return &AvailabilityGate{Assessments: assessments, Attempts: attempts, Now: time.Now}
}

// CheckByID 依次检查：存在性、开放时间、关闭时间、作答次数，首个失败即返回。
// kind 为空时不校验测评类型。
func (g *AvailabilityGate) CheckByID(ctx context.Context, kind model.AssessmentKind, assessmentID, learnerID uint) (*model.Assessment, Availability, error) {
	a, err := g.Assessments.FindByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, unavailable(util.KindNotFound, "%s not found", labelOf(kind)), nil
		}
		return nil, Availability{}, util.Persistence(err)
	}
	if kind != "" && a.Kind != kind {
		return nil, unavailable(util.KindNotFound, "%s not found", labelOf(kind)), nil
	}
	avail, err := g.Check(ctx, a, learnerID)
	return a, avail, err
}

func (g *AvailabilityGate) Check(ctx context.Context, a *model.Assessment, learnerID uint) (Availability, error) {
	now := g.Now()
	label := a.Kind.Label()

	if now.Before(a.OpenAt) {
		return unavailable(util.KindNotYetOpen, "%s is not yet open. Opens on %s", label, a.OpenAt.Local().Format(util.TimeFormat)), nil
	}
	if now.After(a.CloseAt) {
		return unavailable(util.KindClosed, "%s has closed. Closed on %s", label, a.CloseAt.Local().Format(util.TimeFormat)), nil
	}

	used, err := g.Attempts.CountFinalized(ctx, a.ID, learnerID)
	if err != nil {
		return Availability{}, util.Persistence(err)
	}
	if used >= int64(a.AttemptsAllowed) {
		return unavailable(util.KindAttemptsExhausted, "You have used all %d attempt(s) allowed for this %s", a.AttemptsAllowed, strings.ToLower(label)), nil
	}
	return Availability{Available: true}, nil
}

func labelOf(kind model.AssessmentKind) string {
	if kind == "" {
		return "Assessment"
	}
	return kind.Label()
}
