// Package server exposes the transcription pipeline and speaker registry
// over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/voxlabs/voxscribe/pkg/config"
	"github.com/voxlabs/voxscribe/pkg/logger"
	"github.com/voxlabs/voxscribe/pkg/providers"
	"github.com/voxlabs/voxscribe/pkg/registry"
	"github.com/voxlabs/voxscribe/pkg/transcript"
)

// Transcriber runs one uploaded file through the processing pipeline.
type Transcriber interface {
	Process(ctx context.Context, filePath, uploadID, filename string) (*transcript.Record, error)
}

// Backends groups the model sidecars for health reporting.
type Backends struct {
	STT      providers.SpeechToText
	Diarizer providers.Diarizer
	Embedder providers.Embedder
}

// Server is the HTTP front end.
type Server struct {
	cfg        *config.Config
	pipeline   Transcriber
	store      *transcript.Store
	registry   *registry.Registry
	backends   Backends
	engine     *gin.Engine
	httpServer *http.Server
	log        *logger.Logger
}

// New creates the server and registers all routes.
func New(cfg *config.Config, pipeline Transcriber, store *transcript.Store, reg *registry.Registry, backends Backends) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.MaxMultipartMemory = 32 << 20

	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
		registry: reg,
		backends: backends,
		engine:   engine,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      engine,
			ReadTimeout:  30 * time.Minute,
			WriteTimeout: 30 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		log: logger.WithComponent("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/transcribe", s.handleTranscribe)
	s.engine.GET("/transcripts", s.handleListTranscripts)
	s.engine.GET("/transcripts/:id", s.handleGetTranscript)

	api := s.engine.Group("/api")
	{
		api.GET("/speakers", s.handleListSpeakers)
		api.GET("/speakers/:id", s.handleGetSpeaker)
		api.PUT("/speakers/:id", s.handleRenameSpeaker)
		api.DELETE("/speakers/:id", s.handleDeleteSpeaker)
		api.POST("/speakers/merge", s.handleMergeSpeakers)
		api.GET("/speakers/:id/clip", s.handleSpeakerClip)
		api.GET("/search", s.handleSearch)
	}
}

// Engine returns the underlying Gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start binds the listen address and serves until Shutdown. It returns once
// the listener is bound; serving continues in a goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.httpServer.Addr, err)
	}
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs one line per request through the global logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithComponent("http").Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request")
	}
}
