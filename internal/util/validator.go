package util

import (
	"strconv"

	"school_lms_backend/internal/model"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators 注册题型与测评类型校验器到 gin 的校验引擎
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("questiontype", func(fl validator.FieldLevel) bool {
		return model.QuestionType(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("assessmentkind", func(fl validator.FieldLevel) bool {
		return model.AssessmentKind(fl.Field().String()).Valid()
	})
}

// ParseUintParam 解析路径参数，失败返回 false
func ParseUintParam(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
