package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/berfenger/panelsense/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

type stateResponse struct {
	State fmt.Stringer `json:"state"`
}

type entityResponse struct {
	Domain domain.EntityDomain `json:"domain"`
	State  domain.EntityState  `json:"state"`
}

type commandRequest struct {
	Action domain.CommandAction `json:"action"`
	Value  *int                 `json:"value,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = s.errorHandler
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	api.POST("/login", s.LoginHandler)
	api.POST("/disconnect", s.DisconnectHandler)
	api.GET("/connection", s.ConnectionHandler)
	api.GET("/session", s.SessionHandler)
	api.GET("/configuration", s.ConfigurationHandler)
	api.POST("/entities/refresh", s.RefreshHandler)
	api.GET("/entities/:id", s.EntityHandler)
	api.GET("/entities/:id/stream", s.EntityStreamHandler)
	api.POST("/entities/:id/command", s.CommandHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	response, err := s.backend.Health(ctx)
	if err != nil || !response.Healthy {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	return c.String(http.StatusOK, "health_check: OK")
}

func (s *Server) LoginHandler(c echo.Context) error {
	var data domain.ServerConnectionData
	if err := c.Bind(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid login request")
	}
	if data.Host == "" || data.Port == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "host and port are required")
	}
	if err := s.backend.Login(c.Request().Context(), data); err != nil {
		s.logger.Info("login failed", zap.String("address", data.Address()), zap.Error(err))
		return err
	}
	return c.JSON(http.StatusOK, stateResponse{State: s.backend.CurrentSessionState()})
}

func (s *Server) DisconnectHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if err := s.backend.Disconnect(ctx); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) ConnectionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, stateResponse{State: s.backend.CurrentConnectionState()})
}

func (s *Server) SessionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, stateResponse{State: s.backend.CurrentSessionState()})
}

func (s *Server) ConfigurationHandler(c echo.Context) error {
	cfg, ok := s.backend.CurrentConfiguration()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no configuration received yet")
	}
	if len(cfg.Raw) > 0 {
		return c.JSONBlob(http.StatusOK, cfg.Raw)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) EntityHandler(c echo.Context) error {
	state, ok := s.backend.LatestEntityState(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown entity")
	}
	return c.JSON(http.StatusOK, entityResponse{Domain: state.Domain(), State: state})
}

// EntityStreamHandler sends the entity's states as server-sent events until the
// client goes away.
func (s *Server) EntityStreamHandler(c echo.Context) error {
	ctx := c.Request().Context()
	states := s.backend.ObserveEntityStateWithLatest(ctx, c.Param("id"), domain.EntityDomain(c.QueryParam("domain")))

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case state, ok := <-states:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(entityResponse{Domain: state.Domain(), State: state})
			if err != nil {
				s.logger.Warn("could not encode entity state", zap.String("entity", state.EntityID()), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(res, "event: state\ndata: %s\n\n", payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func (s *Server) RefreshHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if err := s.backend.RequestEntitiesState(ctx, false); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) CommandHandler(c echo.Context) error {
	var req commandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid command request")
	}
	entityId := c.Param("id")
	cmd := domain.EntityCommand{
		EntityId: entityId,
		Domain:   entityDomain(entityId),
		Action:   req.Action,
		Value:    req.Value,
	}
	if state, ok := s.backend.LatestEntityState(entityId); ok {
		cmd.Domain = state.Domain()
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if err := s.backend.SendCommand(ctx, cmd); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusFor(err)
	message := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		message = fmt.Sprintf("%v", he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	if err := c.JSON(code, errorResponse{Error: message}); err != nil {
		s.logger.Warn("could not write error response", zap.Error(err))
	}
}

func statusFor(err error) int {
	var he *echo.HTTPError
	var connErr *domain.ConnectionError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, domain.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthRejected):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLoginCancelled), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.Is(err, domain.ErrAuthTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func entityDomain(entityId string) domain.EntityDomain {
	if prefix, _, found := strings.Cut(entityId, "."); found {
		return domain.EntityDomain(prefix)
	}
	return ""
}
