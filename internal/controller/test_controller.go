package controller

import (
	"errors"
	"strconv"

	"edu_assessment_backend/internal/service"
	"edu_assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type TestController struct {
	Service *service.TestService
}

func NewTestController(svc *service.TestService) *TestController {
	return &TestController{Service: svc}
}

// @Summary 创建测验
// @Tags 测验管理模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateTestRequest true "测验信息"
// @Success 201 {object} util.Response
// @Router /api/teacher/tests [post]
func (c *TestController) Create(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateTestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	test, err := c.Service.CreateTest(user.UserID, &req)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, test)
}

// @Summary 获取测验列表
// @Tags 测验管理模块
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response
// @Router /api/teacher/tests [get]
func (c *TestController) List(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	tests, total, err := c.Service.ListTests(user.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: tests, Total: total, Page: page, Limit: limit})
}

// @Summary 获取测验详情
// @Tags 测验管理模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/tests/{id} [get]
func (c *TestController) Get(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	detail, err := c.Service.GetTestDetail(ctx.Request.Context(), id)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// @Summary 更新测验
// @Tags 测验管理模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Param body body service.UpdateTestRequest true "测验信息"
// @Success 200 {object} util.Response
// @Router /api/teacher/tests/{id} [put]
func (c *TestController) Update(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id := util.MustParseUint(ctx.Param("id"))

	var req service.UpdateTestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	test, err := c.Service.UpdateTest(ctx.Request.Context(), user.UserID, id, &req)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// @Summary 发布测验
// @Tags 测验管理模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/tests/{id}/publish [post]
func (c *TestController) Publish(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id := util.MustParseUint(ctx.Param("id"))

	test, err := c.Service.PublishTest(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// @Summary 归档测验
// @Tags 测验管理模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/tests/{id}/archive [post]
func (c *TestController) Archive(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id := util.MustParseUint(ctx.Param("id"))

	test, err := c.Service.ArchiveTest(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// @Summary 删除测验
// @Tags 测验管理模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/tests/{id} [delete]
func (c *TestController) Delete(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id := util.MustParseUint(ctx.Param("id"))

	if err := c.Service.DeleteTest(ctx.Request.Context(), user.UserID, id); err != nil {
		c.respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 创建测验关联
// @Tags 测验管理模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Param body body service.CreateLinkageRequest true "关联信息"
// @Success 201 {object} util.Response
// @Router /api/teacher/tests/{id}/linkages [post]
func (c *TestController) CreateLinkage(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id := util.MustParseUint(ctx.Param("id"))

	var req service.CreateLinkageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	linkage, err := c.Service.CreateLinkage(user.UserID, id, &req)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	util.Created(ctx, linkage)
}

// @Summary 删除测验关联
// @Tags 测验管理模块
// @Produce json
// @Security BearerAuth
// @Param linkageId path int true "关联ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/linkages/{linkageId} [delete]
func (c *TestController) DeleteLinkage(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	linkageID := util.MustParseUint(ctx.Param("linkageId"))

	if err := c.Service.DeleteLinkage(user.UserID, linkageID); err != nil {
		c.respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 获取课程下的测验关联
// @Tags 测验管理模块
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/courses/{courseId}/tests [get]
func (c *TestController) ListByCourse(ctx *gin.Context) {
	courseID := util.MustParseUint(ctx.Param("courseId"))

	linkages, err := c.Service.ListLinkagesByCourse(courseID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, linkages)
}

// @Summary 获取测验统计
// @Tags 测验管理模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/tests/{id}/stats [get]
func (c *TestController) Stats(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id := util.MustParseUint(ctx.Param("id"))

	stats, err := c.Service.GetTestStats(user.UserID, id)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// @Summary 导出测验作答记录
// @Tags 测验管理模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/tests/{id}/export [post]
func (c *TestController) Export(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id := util.MustParseUint(ctx.Param("id"))

	url, err := c.Service.ExportAttempts(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url})
}

func (c *TestController) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrTestNotFound), errors.Is(err, util.ErrLinkageNotFound):
		util.NotFound(ctx, err.Error())
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
