// Package http is the pipeline's own thin control plane: trigger a
// chapter or batch translation job, poll its status, and report health.
// It is deliberately small — the full REST API (auth, subscriptions,
// comments, the admin CMS) is an out-of-scope external collaborator per
// the spec; this surface exists only so an operator or a calling service
// can drive the pipeline over HTTP instead of embedding it as a library.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/toonrelay/pipeline/docs"
)

// NewRouter builds the control-plane Echo instance around a single
// Handler.
//
// @title ToonRelay Pipeline Control Plane
// @version 1.0
// @description Trigger chapter/batch translation jobs and poll their status.
// @BasePath /api/v1
func NewRouter(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(RequestLoggerMiddleware())

	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.GET("/healthz", h.Health)

	api := e.Group("/api/v1")
	api.POST("/jobs", h.SubmitJob)
	api.GET("/jobs/:id", h.GetJob)
	api.POST("/batches", h.SubmitBatch)
	api.GET("/settings/:key", h.GetSetting)
	api.PUT("/settings/:key", h.PutSetting)

	return e
}
