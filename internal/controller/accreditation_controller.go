package controller

import (
	"edu_assessment_backend/internal/service"
	"edu_assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AccreditationController struct {
	Service *service.AccreditationService
}

func NewAccreditationController(svc *service.AccreditationService) *AccreditationController {
	return &AccreditationController{Service: svc}
}

// @Summary 获取当前学生的认证记录
// @Tags 认证记录模块
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/accreditations [get]
func (c *AccreditationController) ListMine(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	records, err := c.Service.ListForStudent(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, records)
}
