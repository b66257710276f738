// Package server exposes text generation over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"llmalfr-go/alfr"
	"llmalfr-go/logger"
)

// GenerateRequest is the body of POST /v1/generate
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// ProcessRequest is the body of POST /v1/process
type ProcessRequest struct {
	Instruction string `json:"instruction"`
	Context     string `json:"context"`
}

// Response is returned by both generation endpoints
type Response struct {
	Status    string `json:"status"`
	Text      string `json:"text"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	ElapsedMS int64  `json:"elapsed_ms"`
	NewTokens int    `json:"new_tokens,omitempty"`
}

// Server routes requests to a session, and optionally to a separate
// processor for /v1/process
type Server struct {
	session   func() *alfr.Session
	processor alfr.Processor
	log       logger.Logger
}

type Option func(*Server)

// WithSession pins the server to sess instead of the process-wide default
func WithSession(sess *alfr.Session) Option {
	return func(s *Server) { s.session = func() *alfr.Session { return sess } }
}

// WithProcessor routes /v1/process to p
func WithProcessor(p alfr.Processor) Option {
	return func(s *Server) { s.processor = p }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server backed by the process-wide default session
func New(opts ...Option) *Server {
	s := &Server{
		session: alfr.DefaultSession,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/generate", s.handleGenerate)
	e.POST("/v1/process", s.handleProcess)
}

// NewEcho builds an echo instance with recovery and request logging
func NewEcho(s *Server) *echo.Echo {
	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	s.Register(e)
	return e
}

// Start serves on addr until ctx is cancelled
func Start(ctx context.Context, addr string, readTimeout time.Duration, s *Server) error {
	s.log.Info("starting server", "address", addr)
	sc := echo.StartConfig{
		Address: addr,
		BeforeServeFunc: func(srv *http.Server) error {
			srv.ReadHeaderTimeout = readTimeout
			return nil
		},
	}
	return sc.Start(ctx, NewEcho(s))
}

func (s *Server) handleHealth(c *echo.Context) error {
	ready := s.session() != nil
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{"ready": ready})
}

func (s *Server) handleGenerate(c *echo.Context) error {
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	res := s.session().Generate(c.Request().Context(), req.Prompt)
	s.logResult("/v1/generate", res)
	return writeResult(c, res)
}

func (s *Server) handleProcess(c *echo.Context) error {
	req, err := decodeJSON[ProcessRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if strings.TrimSpace(req.Instruction) == "" {
		return writeBadRequest(c, "instruction is required")
	}

	if s.processor == nil {
		res := s.session().Generate(c.Request().Context(), alfr.JoinPrompt(req.Instruction, req.Context))
		s.logResult("/v1/process", res)
		return writeResult(c, res)
	}

	start := time.Now()
	id := uuid.NewString()
	text, err := s.processor.Process(c.Request().Context(), req.Instruction, req.Context)
	resp := Response{
		Status:    alfr.KindSuccess.String(),
		Text:      text,
		Message:   text,
		RequestID: id,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		s.log.Warn("processor failed", "request_id", id, "error", err)
		resp.Status = alfr.KindFault.String()
		resp.Text = ""
		resp.Message = err.Error()
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		return c.JSON(status, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) logResult(route string, res alfr.Result) {
	s.log.Info("generation finished",
		"route", route,
		"request_id", res.RequestID,
		"status", res.Kind.String(),
		"new_tokens", res.NewTokens,
		"elapsed", res.Elapsed)
}

// httpStatus maps a generation outcome to a response code
func httpStatus(k alfr.Kind) int {
	switch k {
	case alfr.KindSuccess, alfr.KindEmptyOutput:
		return http.StatusOK
	case alfr.KindNotInitialized:
		return http.StatusServiceUnavailable
	case alfr.KindTimedOut:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(c *echo.Context, res alfr.Result) error {
	return c.JSON(httpStatus(res.Kind), Response{
		Status:    res.Kind.String(),
		Text:      res.Text,
		Message:   res.Message(),
		RequestID: res.RequestID,
		ElapsedMS: res.Elapsed.Milliseconds(),
		NewTokens: res.NewTokens,
	})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{"error": msg})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
