package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/waspdev/waspd/ai/router"
)

type webhookRequest struct {
	Message  string            `json:"message"`
	UserID   string            `json:"userId"`
	Channel  string            `json:"channel"`
	Metadata map[string]string `json:"metadata"`
}

type webhookResponse struct {
	Response string `json:"response"`
}

// Webhook ingests one external event as a task and answers with the
// completed response. The reply is not streamed: the handler waits for
// the task's terminal event.
func (s *APIV1Service) Webhook(c echo.Context) error {
	var req webhookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed request body").SetInternal(err)
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing message")
	}
	if req.Channel == "" {
		req.Channel = "webhook"
	}
	if req.UserID == "" {
		req.UserID = "anonymous"
	}

	events, unsubscribe := s.Router.Subscribe()
	defer unsubscribe()

	task := router.NewTask(req.Channel, req.UserID, req.Message, req.Metadata)
	if _, err := s.Router.Submit(task); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error()).SetInternal(err)
	}

	timeout := s.requestTimeout()
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return echo.NewHTTPError(http.StatusInternalServerError, "Event stream closed")
			}
			if ev.TaskID != task.ID {
				continue
			}
			switch ev.Type {
			case router.EventComplete:
				return c.JSON(http.StatusOK, webhookResponse{Response: ev.Response})
			case router.EventError:
				return echo.NewHTTPError(http.StatusBadGateway, ev.Error)
			case router.EventCancelled:
				return echo.NewHTTPError(http.StatusConflict, "Task cancelled")
			case router.EventDropped:
				return echo.NewHTTPError(http.StatusServiceUnavailable, "Task dropped: "+ev.Reason)
			}
		case <-deadline:
			s.Router.Cancel(task.ID)
			return echo.NewHTTPError(http.StatusGatewayTimeout, "Request timed out")
		case <-c.Request().Context().Done():
			// A disconnected submitter does not stop the task: it runs
			// to completion and its turns are still recorded.
			return c.Request().Context().Err()
		}
	}
}

func (s *APIV1Service) requestTimeout() time.Duration {
	if s.Profile == nil || s.Profile.RequestTimeout <= 0 {
		return 0
	}
	return time.Duration(s.Profile.RequestTimeout) * time.Second
}
