// Package service exposes a decode model over HTTP.
package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/alloynmt/alloy/internal/decode"
	"github.com/alloynmt/alloy/internal/logger"
	"github.com/alloynmt/alloy/internal/logits"
	"github.com/alloynmt/alloy/internal/version"
)

const (
	defaultSteps = 16
	maxSteps     = 1024
)

type Server struct {
	model   *decode.Model
	store   *DecodeStore
	log     logger.Logger
	limiter *rate.Limiter
	clock   func() time.Time
}

// NewServer wires a model into an HTTP handler set. rps limits request
// admission; zero or negative disables the limit.
func NewServer(model *decode.Model, store *DecodeStore, log logger.Logger, rps float64, burst int) *Server {
	if store == nil {
		store = NewDecodeStore()
	}
	if log == nil {
		log = logger.Default()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
		if burst <= 0 {
			burst = 1
		}
	}
	return &Server{
		model:   model,
		store:   store,
		log:     log,
		limiter: rate.NewLimiter(limit, burst),
		clock:   time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/decode", s.handleDecode)
	e.POST("/v1/score", s.handleScore)
	e.GET("/v1/decodes/:id", s.handleGetDecode)
	e.DELETE("/v1/decodes/:id", s.handleDeleteDecode)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleDecode(c *echo.Context) error {
	if !s.limiter.Allow() {
		return writeTooManyRequests(c)
	}
	req, err := decodeJSON[DecodeRequest](c.Request().Body)
	if err != nil {
		return writeRequestError(c, err)
	}
	if len(req.Prompt) == 0 {
		return writeBadRequest(c, "prompt must not be empty")
	}
	steps := req.Steps
	if steps <= 0 {
		steps = defaultSteps
	}
	if steps > maxSteps {
		return writeBadRequest(c, "steps exceeds the maximum of 1024")
	}
	mems, err := toMemory(req.Memory, s.model.Decoder().Config().NumUnits)
	if err != nil {
		return writeRequestError(c, err)
	}

	sampler := logits.NewSampler(logits.SamplerConfig{
		Seed:        req.Seed,
		Temperature: req.Temperature,
		TopK:        req.TopK,
		TopP:        req.TopP,
	})
	sess, err := s.model.NewSession(req.Domain, mems, sampler)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	toks, stats, err := sess.Generate(c.Request().Context(), req.Prompt, steps, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return writeBadRequest(c, err.Error())
	}

	resp := DecodeResponse{
		ID:              sess.ID,
		Object:          "decode",
		CreatedAt:       s.clock().Unix(),
		Domain:          req.Domain,
		Prompt:          req.Prompt,
		Tokens:          toks,
		TokensGenerated: stats.TokensGenerated,
		DurationMS:      stats.Duration.Milliseconds(),
		TokensPerSec:    stats.TPS,
	}
	s.store.Put(resp)
	s.log.Info("decode complete", "id", resp.ID, "domain", resp.Domain, "tokens", resp.TokensGenerated)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleScore(c *echo.Context) error {
	if !s.limiter.Allow() {
		return writeTooManyRequests(c)
	}
	req, err := decodeJSON[ScoreRequest](c.Request().Body)
	if err != nil {
		return writeRequestError(c, err)
	}
	if len(req.Tokens) < 2 {
		return writeBadRequest(c, "tokens must hold at least two entries")
	}
	mems, err := toMemory(req.Memory, s.model.Decoder().Config().NumUnits)
	if err != nil {
		return writeRequestError(c, err)
	}
	if d := req.Domain; d < 0 || d >= s.model.Decoder().Config().NumDomains {
		return writeBadRequest(c, "domain out of range")
	}

	scores, total, err := s.model.Score(req.Tokens, req.Domain, mems)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	return c.JSON(http.StatusOK, ScoreResponse{
		Domain: req.Domain,
		Tokens: req.Tokens,
		Scores: scores,
		Total:  total,
	})
}

func (s *Server) handleGetDecode(c *echo.Context) error {
	id := c.Param("id")
	resp, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "decode not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteDecode(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "decode not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.String(),
	})
}
