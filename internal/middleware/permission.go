package middleware

import (
	"strings"

	"school_lms_backend/internal/model"
	"school_lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

const (
	PermAssessmentTake   = "assessment:take"
	PermAssessmentManage = "assessment:manage"
	PermAttemptStart     = "attempt:start"
	PermAttemptSave      = "attempt:save"
	PermAttemptSubmit    = "attempt:submit"
	PermAttemptViewOwn   = "attempt:view-own"
	PermAttemptViewAll   = "attempt:view-all"
	PermAttemptGrade     = "attempt:grade"
)

// RolePermissions 角色权限表，支持 "*" 与前缀通配 "attempt:*"
var RolePermissions = map[model.UserRole][]string{
	model.Student: {
		PermAssessmentTake,
		PermAttemptStart,
		PermAttemptSave,
		PermAttemptSubmit,
		PermAttemptViewOwn,
	},
	model.Teacher: {
		PermAssessmentManage,
		PermAttemptViewAll,
		PermAttemptGrade,
	},
	model.Admin: {"*"},
}

func HasPermission(role model.UserRole, perm string) bool {
	for _, p := range RolePermissions[role] {
		if matchPerm(p, perm) {
			return true
		}
	}
	return false
}

func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(perm, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// RequirePermission 需先经过 AuthMiddleware
func RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}
		if !HasPermission(user.Role, perm) {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
