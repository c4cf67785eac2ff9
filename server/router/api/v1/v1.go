// Package v1 implements the gateway's JSON API: health and status
// probes plus the webhook channel.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/waspdev/waspd/ai/engine"
	"github.com/waspdev/waspd/ai/router"
	"github.com/waspdev/waspd/internal/profile"
	"github.com/waspdev/waspd/store"
)

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Router  *router.Router
	Engine  *engine.Client
}

func NewAPIV1Service(p *profile.Profile, st *store.Store, rt *router.Router, eng *engine.Client) *APIV1Service {
	return &APIV1Service{
		Profile: p,
		Store:   st,
		Router:  rt,
		Engine:  eng,
	}
}

func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.Health)
	e.GET("/api/status", s.Status)
	e.POST("/webhook", s.Webhook)
}
