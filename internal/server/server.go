package server

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ScooterAI2025/scooter-whatsapp/internal/config"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/domain"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/stream"
)

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	app         domain.AppService
	broadcaster *stream.Broadcaster
	clock       clockwork.Clock
	db          *pgxpool.Pool
	startTime   time.Time
}

func NewServer(cfg *config.Config, app domain.AppService, broadcaster *stream.Broadcaster, db *pgxpool.Pool, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	srv := &Server{
		echo:        e,
		config:      cfg,
		app:         app,
		broadcaster: broadcaster,
		clock:       clock,
		db:          db,
		startTime:   clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
