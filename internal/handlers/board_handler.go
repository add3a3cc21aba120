package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"crmboard/internal/apiclient"
	"crmboard/internal/realtime"
	"crmboard/internal/services"
)

type BoardHandler struct {
	service *services.BoardService
	hub     *realtime.BoardHub
}

func NewBoardHandler(service *services.BoardService, hub *realtime.BoardHub) *BoardHandler {
	return &BoardHandler{service: service, hub: hub}
}

type selectPipelineRequest struct {
	PipelineID *int `json:"pipeline_id" binding:"required"`
}

type selectStageRequest struct {
	StageID *int   `json:"stage_id"`
	Status  string `json:"status"`
}

type setPageRequest struct {
	Page int `json:"page" binding:"required"`
}

// boardCommand: сообщение клиента по websocket.
type boardCommand struct {
	Action     string `json:"action"`
	PipelineID *int   `json:"pipeline_id,omitempty"`
	StageID    *int   `json:"stage_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Page       int    `json:"page,omitempty"`
}

func writeBoardError(c *gin.Context, err error) {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, services.ErrBoardNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrBoardForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidPage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *BoardHandler) board(c *gin.Context) (*services.Board, bool) {
	userID, _ := getUserAndRole(c)
	b, err := h.service.Get(c.Param("id"), userID)
	if err != nil {
		writeBoardError(c, err)
		return nil, false
	}
	return b, true
}

// Open
// @Summary      Открыть доску CRM
// @Description  Грузит воронки, строит справочник стадий и запускает загрузку лидов
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Success      201  {object}  services.BoardSnapshot
// @Router       /boards [post]
func (h *BoardHandler) Open(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	b := h.service.Open(c.Request.Context(), userID, getToken(c))
	c.JSON(http.StatusCreated, b.Snapshot())
}

// Get
// @Summary      Снимок доски
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Board ID"
// @Success      200  {object}  services.BoardSnapshot
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id} [get]
func (h *BoardHandler) Get(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, b.Snapshot())
}

// Close
// @Summary      Закрыть доску
// @Description  Фильтр выбрасывается, подписчики websocket отключаются
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Board ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id} [delete]
func (h *BoardHandler) Close(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	if err := h.service.Close(c.Param("id"), userID); err != nil {
		writeBoardError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SelectPipeline
// @Summary      Выбрать воронку
// @Tags         boards
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string                 true  "Board ID"
// @Param        body  body  selectPipelineRequest  true  "Воронка"
// @Success      200  {object}  services.BoardSnapshot
// @Router       /boards/{id}/pipeline [post]
func (h *BoardHandler) SelectPipeline(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}
	var req selectPipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, b.SelectPipeline(*req.PipelineID))
}

// SelectStage
// @Summary      Выбрать стадию
// @Description  Пустое тело или stage_id: null выбирает «Все стадии» текущей воронки
// @Tags         boards
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string              true   "Board ID"
// @Param        body  body  selectStageRequest  false  "Стадия или статус"
// @Success      200  {object}  services.BoardSnapshot
// @Failure      400  {object}  map[string]string
// @Router       /boards/{id}/stage [post]
func (h *BoardHandler) SelectStage(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}
	var req selectStageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, b.SelectStage(req.StageID, req.Status))
}

// ClearFilter
// @Summary      Сбросить фильтр
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Board ID"
// @Success      200  {object}  services.BoardSnapshot
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id}/filter [delete]
func (h *BoardHandler) ClearFilter(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, b.ClearFilter())
}

// NextStage
// @Summary      Следующая стадия
// @Description  «Все стадии» → стадия 1 → ... → последняя → «Все стадии»
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Board ID"
// @Success      200  {object}  services.BoardSnapshot
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id}/stages/next [post]
func (h *BoardHandler) NextStage(c *gin.Context) {
	if b, ok := h.board(c); ok {
		c.JSON(http.StatusOK, b.NextStage())
	}
}

// PrevStage
// @Summary      Предыдущая стадия
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Board ID"
// @Success      200  {object}  services.BoardSnapshot
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id}/stages/prev [post]
func (h *BoardHandler) PrevStage(c *gin.Context) {
	if b, ok := h.board(c); ok {
		c.JSON(http.StatusOK, b.PrevStage())
	}
}

// NextPipeline
// @Summary      Следующая воронка
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Board ID"
// @Success      200  {object}  services.BoardSnapshot
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id}/pipelines/next [post]
func (h *BoardHandler) NextPipeline(c *gin.Context) {
	if b, ok := h.board(c); ok {
		c.JSON(http.StatusOK, b.NextPipeline())
	}
}

// PrevPipeline
// @Summary      Предыдущая воронка
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Board ID"
// @Success      200  {object}  services.BoardSnapshot
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id}/pipelines/prev [post]
func (h *BoardHandler) PrevPipeline(c *gin.Context) {
	if b, ok := h.board(c); ok {
		c.JSON(http.StatusOK, b.PrevPipeline())
	}
}

// SetPage
// @Summary      Перейти на страницу
// @Tags         boards
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Board ID"
// @Param        body  body  setPageRequest  true  "Страница (с 1)"
// @Success      200  {object}  services.BoardSnapshot
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id}/page [post]
func (h *BoardHandler) SetPage(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}
	var req setPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := b.SetPage(req.Page)
	if err != nil {
		writeBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Retry
// @Summary      Повторить загрузку лидов
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Board ID"
// @Success      200  {object}  services.BoardSnapshot
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id}/retry [post]
func (h *BoardHandler) Retry(c *gin.Context) {
	if b, ok := h.board(c); ok {
		c.JSON(http.StatusOK, b.Retry())
	}
}

// ReloadPipelines: при ошибке доска остаётся на прежнем справочнике.
// @Summary      Перезагрузить воронки
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Board ID"
// @Success      200  {object}  services.BoardSnapshot
// @Failure      502  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id}/reload [post]
func (h *BoardHandler) ReloadPipelines(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}
	snap, err := b.ReloadPipelines(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "board": snap})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Stats
// @Summary      Сводка по текущей выборке
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Board ID"
// @Success      200  {object}  models.CrmStats
// @Router       /boards/{id}/stats [get]
func (h *BoardHandler) Stats(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}
	stats, err := b.Stats(c.Request.Context())
	if err != nil {
		writeBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Stream отдаёт снимки доски по websocket и принимает команды навигации.
// @Summary      Подписка на снимки доски
// @Description  Websocket: сервер шлёт BoardSnapshot, клиент шлёт команды навигации. Токен можно передать в access_token
// @Tags         boards
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Board ID"
// @Success      101
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id}/ws [get]
func (h *BoardHandler) Stream(c *gin.Context) {
	b, ok := h.board(c)
	if !ok {
		return
	}

	conn, err := realtime.Upgrade(c.Writer, c.Request)
	if err != nil {
		return
	}
	h.hub.Register(b.ID, conn)
	defer h.hub.Unregister(b.ID, conn)

	if err := conn.WriteJSON(b.Snapshot()); err != nil {
		return
	}
	for {
		var cmd boardCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		if cmd.Action == "" {
			continue
		}
		snap, err := applyCommand(b, cmd)
		if err != nil {
			_ = conn.WriteJSON(gin.H{"error": err.Error()})
			continue
		}
		_ = conn.WriteJSON(snap)
	}
}

var errUnknownAction = errors.New("unknown action")

func applyCommand(b *services.Board, cmd boardCommand) (services.BoardSnapshot, error) {
	switch cmd.Action {
	case "select_pipeline":
		if cmd.PipelineID == nil {
			return services.BoardSnapshot{}, errors.New("pipeline_id required")
		}
		return b.SelectPipeline(*cmd.PipelineID), nil
	case "select_stage":
		return b.SelectStage(cmd.StageID, cmd.Status), nil
	case "clear":
		return b.ClearFilter(), nil
	case "next_stage":
		return b.NextStage(), nil
	case "prev_stage":
		return b.PrevStage(), nil
	case "next_pipeline":
		return b.NextPipeline(), nil
	case "prev_pipeline":
		return b.PrevPipeline(), nil
	case "page":
		return b.SetPage(cmd.Page)
	case "retry":
		return b.Retry(), nil
	case "snapshot":
		return b.Snapshot(), nil
	}
	return services.BoardSnapshot{}, errUnknownAction
}
