package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(errorHandlingMiddleware())

	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/notifications", s.handleNotifications)
	api.POST("/notifications/:id/read", s.handleMarkRead)
	api.POST("/notifications/read-all", s.handleMarkAllRead)
	api.GET("/activity", s.handleActivity)
	api.GET("/transactions/recent", s.handleRecentTransactions)
	api.GET("/accounts", s.handleAccounts)
	api.GET("/dashboard", s.handleDashboard)
	api.POST("/accounts/sync", s.handleSyncBalances)
	api.POST("/accounts/:id/reconcile", s.handleReconcile)
	api.POST("/session/logout", s.handleLogout)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("Request", attrs...)
			return nil
		},
	})
}
