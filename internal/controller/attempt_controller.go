package controller

import (
	"errors"
	"net/http"

	"edu_assessment_backend/internal/service"
	"edu_assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Service *service.AttemptService
}

func NewAttemptController(svc *service.AttemptService) *AttemptController {
	return &AttemptController{Service: svc}
}

// @Summary 开始或恢复测验尝试
// @Tags 测验尝试模块
// @Produce json
// @Security BearerAuth
// @Param linkageId path int true "测验关联ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/attempts/{linkageId}/start [post]
func (c *AttemptController) Start(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	linkageID := util.MustParseUint(ctx.Param("linkageId"))
	if linkageID == 0 {
		util.BadRequest(ctx, "invalid linkage id")
		return
	}

	res, err := c.Service.StartAttempt(user.UserID, linkageID)
	if err != nil {
		respondAttemptError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

type saveAnswersRequest struct {
	Answers []service.SubmittedAnswer `json:"answers" binding:"required"`
}

// @Summary 保存作答进度
// @Tags 测验尝试模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param linkageId path int true "测验关联ID"
// @Param body body saveAnswersRequest true "作答内容"
// @Success 200 {object} util.Response
// @Router /api/attempts/{linkageId}/answers [post]
func (c *AttemptController) SaveAnswers(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	linkageID := util.MustParseUint(ctx.Param("linkageId"))
	if linkageID == 0 {
		util.BadRequest(ctx, "invalid linkage id")
		return
	}

	var req saveAnswersRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.Service.SaveAnswers(user.UserID, linkageID, req.Answers); err != nil {
		respondAttemptError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"saved": len(req.Answers)})
}

type submitAttemptRequest struct {
	Answers []service.SubmittedAnswer `json:"answers"`
}

// @Summary 提交测验尝试
// @Tags 测验尝试模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param linkageId path int true "测验关联ID"
// @Param body body submitAttemptRequest true "最终作答"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/attempts/{linkageId}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	linkageID := util.MustParseUint(ctx.Param("linkageId"))
	if linkageID == 0 {
		util.BadRequest(ctx, "invalid linkage id")
		return
	}

	var req submitAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.Service.SubmitAttempt(user.UserID, linkageID, req.Answers)
	if err != nil {
		respondAttemptError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 查看最近一次测验结果
// @Tags 测验尝试模块
// @Produce json
// @Security BearerAuth
// @Param linkageId path int true "测验关联ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{linkageId}/result [get]
func (c *AttemptController) GetResult(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	linkageID := util.MustParseUint(ctx.Param("linkageId"))
	if linkageID == 0 {
		util.BadRequest(ctx, "invalid linkage id")
		return
	}

	res, err := c.Service.GetResult(user.UserID, linkageID)
	if err != nil {
		respondAttemptError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// respondAttemptError maps the attempt error taxonomy onto HTTP statuses.
func respondAttemptError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrTestNotFound), errors.Is(err, util.ErrLinkageNotFound):
		util.NotFound(ctx, err.Error())
	case errors.Is(err, util.ErrNotYetOpen),
		errors.Is(err, util.ErrWindowClosed),
		errors.Is(err, util.ErrAttemptLimitReached),
		errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx, err.Error())
	case errors.Is(err, util.ErrNoActiveAttempt):
		util.NotFound(ctx, err.Error())
	case errors.Is(err, util.ErrAttemptAlreadyCompleted):
		util.Error(ctx, http.StatusConflict, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
