package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crmboard/internal/authz"
	"crmboard/internal/handlers"
	"crmboard/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	jwtSecret []byte,
	boardHandler *handlers.BoardHandler,
	leadHandler *handlers.LeadHandler, // nil, если БД не настроена
) *gin.Engine {

	// ---- public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ---- protected
	r.Use(middleware.AuthMiddleware(jwtSecret))
	r.Use(middleware.RequireRoles(authz.AllRoles...))

	// CRM API: то, что читает мобильный экран
	if leadHandler != nil {
		r.GET("/leads", leadHandler.List)
		r.GET("/amo-crm/pipelines", leadHandler.Pipelines)
	}

	// BOARDS
	boards := r.Group("/boards")
	{
		boards.POST("", boardHandler.Open)
		boards.GET("/:id", boardHandler.Get)
		boards.DELETE("/:id", boardHandler.Close)

		boards.POST("/:id/pipeline", boardHandler.SelectPipeline)
		boards.POST("/:id/stage", boardHandler.SelectStage)
		boards.DELETE("/:id/filter", boardHandler.ClearFilter)

		boards.POST("/:id/stages/next", boardHandler.NextStage)
		boards.POST("/:id/stages/prev", boardHandler.PrevStage)
		boards.POST("/:id/pipelines/next", boardHandler.NextPipeline)
		boards.POST("/:id/pipelines/prev", boardHandler.PrevPipeline)

		boards.POST("/:id/page", boardHandler.SetPage)
		boards.POST("/:id/retry", boardHandler.Retry)
		boards.POST("/:id/reload", boardHandler.ReloadPipelines)
		boards.GET("/:id/stats", boardHandler.Stats)
		boards.GET("/:id/ws", boardHandler.Stream)
	}

	return r
}
