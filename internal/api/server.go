// Package api serves video analysis over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/reelscope/internal/ffmpeg"
	"github.com/keagan/reelscope/internal/pipeline"
	"github.com/keagan/reelscope/internal/upload"
)

// VideoAnalyzer is the part of the pipeline the handlers need.
type VideoAnalyzer interface {
	Probe(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	AnalyzeInfo(ctx context.Context, info *ffmpeg.VideoInfo, opts pipeline.AnalyzeOptions) (*pipeline.Report, error)
}

type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

type ServerConfig struct {
	Addr           string
	Analyzer       VideoAnalyzer
	Limits         upload.Limits
	TempDir        string
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	// Logger is used as given; callers attach the component field.
	Logger         zerolog.Logger
	StartTime      time.Time
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
