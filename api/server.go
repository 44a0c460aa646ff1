// Package api exposes run history and batch result files over HTTP.
package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cerebella/vlm-bench/internal/config"
	"github.com/cerebella/vlm-bench/internal/history"
)

type Server struct {
	router *gin.Engine
	config *config.Config
	hist   *history.Store
}

func NewServer(cfg *config.Config, hist *history.Store) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("api: nil config")
	}

	r := gin.New()
	s := &Server{
		router: r,
		config: cfg,
		hist:   hist,
	}
	s.registerMiddleware()
	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Run(addr string) error {
	if s == nil || s.router == nil {
		return errors.New("api: nil server")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = ":8080"
	}
	return s.router.Run(addr)
}
