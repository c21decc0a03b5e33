package controller

import (
	"encoding/json"

	"school_lms_backend/internal/model"
	"school_lms_backend/internal/service"
	"school_lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Service *service.AttemptService
}

func NewAttemptController(svc *service.AttemptService) *AttemptController {
	return &AttemptController{Service: svc}
}

type SaveAnswerRequest struct {
	QuestionID uint            `json:"questionId" binding:"required"`
	Value      json.RawMessage `json:"value" swaggertype:"object"`
}

type SubmitRequest struct {
	TimeTaken int `json:"timeTaken" binding:"min=0"`
}

// @Summary 获取测验试卷
// @Description 返回题目与选项（不含正确答案），以及进行中作答的已保存答案
// @Tags 学生作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=service.Paper}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/quizzes/{id} [get]
func (c *AttemptController) GetQuizPaper(ctx *gin.Context) {
	c.getPaper(ctx, model.KindQuiz)
}

// @Summary 获取考试试卷
// @Tags 学生作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response{data=service.Paper}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/exams/{id} [get]
func (c *AttemptController) GetExamPaper(ctx *gin.Context) {
	c.getPaper(ctx, model.KindExam)
}

func (c *AttemptController) getPaper(ctx *gin.Context, kind model.AssessmentKind) {
	claims := util.GetUserFromContext(ctx)
	id, ok := util.ParseUintParam(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid id")
		return
	}

	paper, err := c.Service.GetPaper(ctx.Request.Context(), kind, id, claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, paper)
}

// @Summary 开始测验
// @Description 已有进行中的作答时直接返回该作答
// @Tags 学生作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=service.StartResult}
// @Failure 409 {object} util.Response
// @Router /api/quizzes/{id}/attempts [post]
func (c *AttemptController) StartQuiz(ctx *gin.Context) {
	c.start(ctx, model.KindQuiz)
}

// @Summary 开始考试
// @Tags 学生作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response{data=service.StartResult}
// @Failure 409 {object} util.Response
// @Router /api/exams/{id}/attempts [post]
func (c *AttemptController) StartExam(ctx *gin.Context) {
	c.start(ctx, model.KindExam)
}

func (c *AttemptController) start(ctx *gin.Context, kind model.AssessmentKind) {
	claims := util.GetUserFromContext(ctx)
	id, ok := util.ParseUintParam(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid id")
		return
	}

	res, err := c.Service.Start(ctx.Request.Context(), kind, id, claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	if res.Resumed {
		util.Success(ctx, res)
		return
	}
	util.Created(ctx, res)
}

// @Summary 自动保存答案
// @Description 文本题与单选题提交标量，多选题提交选项ID数组；同一题后写覆盖先写
// @Tags 学生作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param attemptId path string true "作答ID"
// @Param body body SaveAnswerRequest true "答案"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/attempts/{attemptId}/answers [put]
func (c *AttemptController) SaveAnswer(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	var req SaveAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attemptID := ctx.Param("attemptId")
	if err := c.Service.SaveAnswer(ctx.Request.Context(), claims.UserID, attemptID, req.QuestionID, req.Value); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"attemptId": attemptID, "questionId": req.QuestionID, "saved": true})
}

// @Summary 提交作答
// @Description 重复提交返回首次提交的结果
// @Tags 学生作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param attemptId path string true "作答ID"
// @Param body body SubmitRequest false "用时（秒）"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Router /api/attempts/{attemptId}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	var req SubmitRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	res, err := c.Service.Submit(ctx.Request.Context(), claims.UserID, ctx.Param("attemptId"), req.TimeTaken)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 查看作答结果
// @Tags 学生作答
// @Produce json
// @Security BearerAuth
// @Param attemptId path string true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptSummary}
// @Router /api/attempts/{attemptId} [get]
func (c *AttemptController) GetResult(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	res, err := c.Service.GetResult(ctx.Request.Context(), claims.UserID, ctx.Param("attemptId"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}
