package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ha-testbed/harness/internal/domain"
	"github.com/ha-testbed/harness/internal/harness"
	"github.com/ha-testbed/harness/internal/harness/clock"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Server exposes the running harness session over HTTP: the time machine's
// mutation operations, the container status, and the Prometheus metrics
// endpoint. It exists so that test processes in other languages (or a human at
// a terminal) can drive simulated time without linking against this module.
type Server struct {
	logger        *zap.Logger
	sugaredLogger *zap.SugaredLogger
	atom          *zap.AtomicLevel

	engine  *gin.Engine
	session *harness.Session

	prometheusEndpoint string
}

func NewServer(session *harness.Session, prometheusEndpoint string, atom *zap.AtomicLevel) *Server {
	s := &Server{
		atom:               atom,
		engine:             gin.New(),
		session:            session,
		prometheusEndpoint: prometheusEndpoint,
	}

	// Default value
	if s.prometheusEndpoint == "" {
		s.prometheusEndpoint = "/metrics"
	}

	zapConfig := zap.NewDevelopmentEncoderConfig()
	zapConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zapConfig), zapcore.AddSync(colorable.NewColorableStdout()), *atom)
	s.logger = zap.New(core, zap.Development())
	s.sugaredLogger = s.logger.Sugar()

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.ErrorHandlerMiddleware)

	s.engine.GET(s.prometheusEndpoint, gin.WrapH(s.session.Metrics.Handler()))

	s.engine.GET("/api/status", s.HandleStatusRequest)

	clockGroup := s.engine.Group("/api/clock")
	{
		clockGroup.GET("", s.HandleClockRequest)
		clockGroup.POST("/advance", s.HandleAdvanceRequest)
		clockGroup.POST("/jump-to-next", s.HandleJumpToNextRequest)
		clockGroup.POST("/advance-to-preset", s.HandleAdvanceToPresetRequest)
		clockGroup.POST("/set-time", s.HandleSetTimeRequest)
		clockGroup.POST("/set-time-of-day", s.HandleSetTimeOfDayRequest)
	}
}

// Serve runs the HTTP server on the given address. It blocks until the server
// stops.
func (s *Server) Serve(addr string) error {
	s.logger.Info("Harness API server listening.", zap.String("address", addr))
	return s.engine.Run(addr)
}

// ErrorHandlerMiddleware is gin middleware to handle errors that occur while the
// request handlers are processing/handling a request.
func (s *Server) ErrorHandlerMiddleware(c *gin.Context) {
	c.Next() // Execute all the handlers.

	errorsEncountered := make([]error, 0)
	for _, err := range c.Errors {
		errorsEncountered = append(errorsEncountered, err.Err)
		s.logger.Error("Error encountered while serving request.",
			zap.String("url", c.Request.URL.String()), zap.Error(err.Err))
	}

	if len(errorsEncountered) > 0 {
		c.JSON(-1, gin.H{
			"message": errors.Join(errorsEncountered...).Error(),
		})
	}
}

func (s *Server) HandleStatusRequest(c *gin.Context) {
	healthy := s.session.Docker.ContainersHealthy()

	statusCode := http.StatusOK
	if !healthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"session_id": s.session.Id,
		"healthy":    healthy,
	})
}

func (s *Server) HandleClockRequest(c *gin.Context) {
	current := s.session.TimeMachine.Current()
	c.JSON(http.StatusOK, gin.H{
		"current": current.Format(time.RFC3339),
	})
}

// advanceRequest carries the body of a clock-advance request. The duration uses
// Go syntax, e.g. "90m" or "1h30m".
type advanceRequest struct {
	Duration string `json:"duration" binding:"required"`
}

func (s *Server) HandleAdvanceRequest(c *gin.Context) {
	var request advanceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	duration, err := time.ParseDuration(request.Duration)
	if err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, fmt.Errorf("could not parse duration \"%s\": %s", request.Duration, err))
		return
	}

	current, err := s.session.TimeMachine.Advance(duration)
	if err != nil {
		s.abortWithClockError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"current": current.Format(time.RFC3339)})
}

// jumpToNextRequest mirrors the calendar constraint set. Weekday uses the usual
// Sunday=0 convention.
type jumpToNextRequest struct {
	Month      *int `json:"month"`
	DayOfMonth *int `json:"day_of_month"`
	Weekday    *int `json:"weekday"`
	Hour       *int `json:"hour"`
	Minute     *int `json:"minute"`
	Second     *int `json:"second"`
}

func (r *jumpToNextRequest) constraints() clock.Constraints {
	constraints := clock.Constraints{
		DayOfMonth: r.DayOfMonth,
		Hour:       r.Hour,
		Minute:     r.Minute,
		Second:     r.Second,
	}

	if r.Month != nil {
		constraints.Month = clock.Month(time.Month(*r.Month))
	}

	if r.Weekday != nil {
		constraints.Weekday = clock.Weekday(time.Weekday(*r.Weekday))
	}

	return constraints
}

func (s *Server) HandleJumpToNextRequest(c *gin.Context) {
	var request jumpToNextRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	current, err := s.session.TimeMachine.JumpToNext(request.constraints())
	if err != nil {
		s.abortWithClockError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"current": current.Format(time.RFC3339)})
}

type advanceToPresetRequest struct {
	Preset string `json:"preset" binding:"required"`
	Offset string `json:"offset"`
}

func (s *Server) HandleAdvanceToPresetRequest(c *gin.Context) {
	var request advanceToPresetRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	preset, err := domain.ParsePreset(request.Preset)
	if err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	var offset time.Duration
	if request.Offset != "" {
		if offset, err = time.ParseDuration(request.Offset); err != nil {
			_ = c.AbortWithError(http.StatusBadRequest, fmt.Errorf("could not parse offset \"%s\": %s", request.Offset, err))
			return
		}
	}

	current, err := s.session.TimeMachine.AdvanceToPreset(preset, offset)
	if err != nil {
		s.abortWithClockError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"current": current.Format(time.RFC3339)})
}

type setTimeRequest struct {
	Time string `json:"time" binding:"required"`
}

func (s *Server) HandleSetTimeRequest(c *gin.Context) {
	var request setTimeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	target, err := time.ParseInLocation("2006-01-02T15:04:05", request.Time, s.session.TimeMachine.Current().Location())
	if err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, fmt.Errorf("could not parse time \"%s\": %s", request.Time, err))
		return
	}

	current, err := s.session.TimeMachine.SetTime(target)
	if err != nil {
		s.abortWithClockError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"current": current.Format(time.RFC3339)})
}

type setTimeOfDayRequest struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

func (s *Server) HandleSetTimeOfDayRequest(c *gin.Context) {
	var request setTimeOfDayRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	current, err := s.session.TimeMachine.SetTimeOfDay(request.Hour, request.Minute, request.Second)
	if err != nil {
		s.abortWithClockError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"current": current.Format(time.RFC3339)})
}

// abortWithClockError maps the time machine's error categories onto HTTP status
// codes.
func (s *Server) abortWithClockError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrNonMonotonicTime):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrPresetResolution):
		statusCode = http.StatusBadGateway
	}

	_ = c.AbortWithError(statusCode, err)
}
