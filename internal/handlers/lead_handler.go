package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"crmboard/internal/authz"
	"crmboard/internal/models"
	"crmboard/internal/pipeline"
	"crmboard/internal/services"
)

type LeadHandler struct {
	Service *services.LeadService
}

func NewLeadHandler(service *services.LeadService) *LeadHandler {
	return &LeadHandler{Service: service}
}

// List
// @Summary      Список лидов
// @Description  Страница лидов с фильтром по статусу, воронке и стадии
// @Tags         leads
// @Produce      json
// @Security     BearerAuth
// @Param        page        query  int     false  "Страница (с 1)"
// @Param        limit       query  int     false  "Размер страницы (до 1000)"
// @Param        status      query  string  false  "NEW | IN_PROGRESS | CLOSED"
// @Param        pipelineId  query  int     false  "ID воронки"
// @Param        stageId     query  int     false  "ID стадии"
// @Success      200  {object}  models.LeadsPage
// @Failure      400  {object}  map[string]string
// @Router       /leads [get]
func (h *LeadHandler) List(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(pipeline.DefaultPageSize)))
	if err != nil || limit < 1 {
		limit = pipeline.DefaultPageSize
	}
	if limit > pipeline.MaxPageSize {
		limit = pipeline.MaxPageSize
	}

	q := pipeline.LeadQuery{Page: page, Limit: limit}
	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseLeadStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		q.Status = &status
	}
	if q.PipelineID, err = optionalIntQuery(c, "pipelineId"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pipelineId"})
		return
	}
	if q.StageID, err = optionalIntQuery(c, "stageId"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stageId"})
		return
	}
	filter := q.Filter()

	// sales: только свои лиды
	userID, roleID := getUserAndRole(c)
	if !authz.SeesAllLeads(roleID) {
		filter.ResponsibleUserID = &userID
	}

	result, err := h.Service.ListPage(c.Request.Context(), filter, q.Page, q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list leads"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Pipelines
// @Summary      Воронки AMO CRM со стадиями
// @Tags         pipelines
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /amo-crm/pipelines [get]
func (h *LeadHandler) Pipelines(c *gin.Context) {
	pipelines, err := h.Service.ListPipelines(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list pipelines"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pipelines, "count": len(pipelines)})
}
