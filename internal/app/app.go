package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crmboard/internal/apiclient"
	"crmboard/internal/config"
	"crmboard/internal/handlers"
	"crmboard/internal/realtime"
	"crmboard/internal/repositories"
	"crmboard/internal/routes"
	"crmboard/internal/services"
	"crmboard/internal/telemetry"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	_ "crmboard/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Deps: всё, из чего собирается роутер.
type Deps struct {
	Config *config.Config
	DB     *sql.DB // nil: /leads и /amo-crm/pipelines не публикуются
	Boards *services.BoardService
	Hub    *realtime.BoardHub
}

// NewBoardService: каждая доска ходит в CRM API с токеном своего пользователя.
func NewBoardService(cfg *config.Config, hub *realtime.BoardHub) *services.BoardService {
	client := apiclient.New(cfg.Upstream.BaseURL,
		apiclient.WithToken(cfg.Upstream.Token),
		apiclient.WithHTTPClient(&http.Client{
			Timeout:   cfg.Upstream.Timeout,
			Transport: telemetry.Transport(nil),
		}),
		apiclient.WithRetryDelay(cfg.Upstream.RetryDelay),
	)
	return services.NewBoardService(func(token string) services.LeadSource {
		return client.WithToken(token)
	}, services.BoardOptions{
		AllowedPipelines: cfg.Board.AllowedPipelines,
		PageSize:         cfg.Board.PageSize,
		FetchTimeout:     cfg.Board.FetchTimeout,
		IdleTTL:          cfg.Board.IdleTTL,
	}, hub)
}

func NewRouter(d Deps) *gin.Engine {
	var leadHandler *handlers.LeadHandler
	if d.DB != nil {
		leadService := services.NewLeadService(
			repositories.NewLeadRepository(d.DB),
			repositories.NewPipelineRepository(d.DB),
		)
		leadHandler = handlers.NewLeadHandler(leadService)
	}
	boardHandler := handlers.NewBoardHandler(d.Boards, d.Hub)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Роуты (JWT/RBAC внутри SetupRoutes)
	routes.SetupRoutes(router, []byte(d.Config.Auth.JWTSecret), boardHandler, leadHandler)
	return router
}

func Run() {
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		log.Fatal("Ошибка загрузки конфига: ", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("auth.jwt_secret (JWT_SECRET) не задан")
	}
	if cfg.Upstream.BaseURL == "" {
		log.Fatal("upstream.base_url (UPSTREAM_BASE_URL) не задан")
	}

	// === DB ===
	var db *sql.DB
	if cfg.Database.DSN != "" {
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Fatal("Ошибка подключения к БД: ", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Printf("Ошибка закрытия БД: %v", err)
			}
		}()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			log.Printf("БД недоступна: %v", err)
		}
		cancel()
	} else {
		log.Printf("database.url не задан: /leads и /amo-crm/pipelines отключены")
	}

	if cfg.Tracing.Enabled {
		shutdownTracer, err := telemetry.InitTracer(cfg.Tracing.ServiceName)
		if err != nil {
			log.Fatal("Ошибка инициализации трассировки: ", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				log.Printf("Ошибка остановки трассировки: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewBoardHub()
	boards := NewBoardService(cfg, hub)
	go boards.RunSweeper(ctx, cfg.Board.SweepInterval)

	router := NewRouter(Deps{Config: cfg, DB: db, Boards: boards, Hub: hub})

	// === Run ===
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: telemetry.Handler(router, cfg.Tracing.ServiceName),
	}
	go func() {
		log.Printf("Сервер запущен на %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Ошибка запуска сервера: ", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Остановка сервера...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ошибка остановки сервера: %v", err)
	}
	boards.CloseAll()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
