package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
}

type statusResponse struct {
	Routing    string  `json:"routing"`
	LocalModel *string `json:"localModel"`
	Timestamp  int64   `json:"timestamp"`
}

// Health implements the liveness probe.
func (s *APIV1Service) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UnixMilli(),
		Version:   s.Profile.Version,
	})
}

// Status reports the active routing mode and the loaded local model, or
// null when no model is loaded.
func (s *APIV1Service) Status(c echo.Context) error {
	resp := statusResponse{
		Routing:   s.Router.GetConfig().Mode,
		Timestamp: time.Now().UnixMilli(),
	}
	if s.Engine != nil && s.Engine.Loaded() {
		model := s.Engine.ModelID()
		resp.LocalModel = &model
	}
	return c.JSON(http.StatusOK, resp)
}
