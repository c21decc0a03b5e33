package controller

import (
	"bytes"
	"fmt"
	"net/http"

	"school_lms_backend/internal/model"
	"school_lms_backend/internal/service"
	"school_lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AssessmentController struct {
	Service *service.AssessmentService
	Export  *service.ExportService
}

func NewAssessmentController(svc *service.AssessmentService, export *service.ExportService) *AssessmentController {
	return &AssessmentController{Service: svc, Export: export}
}

// @Summary 创建测验或考试
// @Tags 教师测评管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.AssessmentRequest true "测评信息"
// @Success 201 {object} util.Response{data=model.Assessment}
// @Failure 400 {object} util.Response
// @Router /api/teacher/assessments [post]
func (c *AssessmentController) Create(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	var req service.AssessmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	a, err := c.Service.Create(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, a)
}

// @Summary 测评列表
// @Tags 教师测评管理
// @Produce json
// @Security BearerAuth
// @Param kind query string false "quiz 或 exam"
// @Param mine query bool false "仅本人创建"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments [get]
func (c *AssessmentController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	kind := model.AssessmentKind(ctx.Query("kind"))
	if kind != "" && !kind.Valid() {
		util.BadRequest(ctx, "kind must be quiz or exam")
		return
	}
	var creatorID uint
	if ctx.Query("mine") == "true" {
		creatorID = claims.UserID
	}

	list, err := c.Service.List(ctx.Request.Context(), kind, creatorID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// @Summary 测评详情（含正确答案）
// @Tags 教师测评管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response{data=model.Assessment}
// @Router /api/teacher/assessments/{id} [get]
func (c *AssessmentController) Get(ctx *gin.Context) {
	id, ok := util.ParseUintParam(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid id")
		return
	}

	a, err := c.Service.Get(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// @Summary 删除测评
// @Description 级联删除题目、选项与全部作答
// @Tags 教师测评管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments/{id} [delete]
func (c *AssessmentController) Delete(ctx *gin.Context) {
	id, ok := util.ParseUintParam(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid id")
		return
	}

	if err := c.Service.Delete(ctx.Request.Context(), id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 添加题目
// @Tags 教师测评管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Param body body service.QuestionRequest true "题目信息"
// @Success 201 {object} util.Response{data=model.Question}
// @Router /api/teacher/assessments/{id}/questions [post]
func (c *AssessmentController) AddQuestion(ctx *gin.Context) {
	id, ok := util.ParseUintParam(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid id")
		return
	}
	var req service.QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.Service.AddQuestion(ctx.Request.Context(), id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// @Summary 删除题目
// @Tags 教师测评管理
// @Produce json
// @Security BearerAuth
// @Param questionId path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/questions/{questionId} [delete]
func (c *AssessmentController) DeleteQuestion(ctx *gin.Context) {
	id, ok := util.ParseUintParam(ctx.Param("questionId"))
	if !ok {
		util.BadRequest(ctx, "invalid question id")
		return
	}

	if err := c.Service.DeleteQuestion(ctx.Request.Context(), id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 测评作答列表
// @Tags 教师阅卷
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response{data=[]service.AttemptSummary}
// @Router /api/teacher/assessments/{id}/attempts [get]
func (c *AssessmentController) ListAttempts(ctx *gin.Context) {
	id, ok := util.ParseUintParam(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid id")
		return
	}

	list, err := c.Service.ListAttempts(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// @Summary 作答详情
// @Description 逐题得分、学生选项与作答事件
// @Tags 教师阅卷
// @Produce json
// @Security BearerAuth
// @Param attemptId path string true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptDetail}
// @Router /api/teacher/attempts/{attemptId} [get]
func (c *AssessmentController) AttemptDetail(ctx *gin.Context) {
	detail, err := c.Service.AttemptDetail(ctx.Request.Context(), ctx.Param("attemptId"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// @Summary 重新评分
// @Tags 教师阅卷
// @Produce json
// @Security BearerAuth
// @Param attemptId path string true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptSummary}
// @Router /api/teacher/attempts/{attemptId}/regrade [post]
func (c *AssessmentController) Regrade(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	summary, err := c.Service.Regrade(ctx.Request.Context(), claims.UserID, ctx.Param("attemptId"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

// @Summary 下载成绩 CSV
// @Tags 教师阅卷
// @Produce text/csv
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {file} file
// @Router /api/teacher/assessments/{id}/results.csv [get]
func (c *AssessmentController) ExportCSV(ctx *gin.Context) {
	id, ok := util.ParseUintParam(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid id")
		return
	}

	var buf bytes.Buffer
	if err := c.Export.WriteCSV(ctx.Request.Context(), id, &buf); err != nil {
		util.RespondError(ctx, err)
		return
	}

	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"assessment-%d-results.csv\"", id))
	ctx.Data(http.StatusOK, util.MimeCSV+"; charset=utf-8", buf.Bytes())
}

// @Summary 导出成绩到存储
// @Description 生成 CSV 上传到本地存储或 MinIO，返回下载地址
// @Tags 教师阅卷
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments/{id}/results/export [post]
func (c *AssessmentController) PublishExport(ctx *gin.Context) {
	id, ok := util.ParseUintParam(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid id")
		return
	}

	url, err := c.Export.Publish(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url})
}
