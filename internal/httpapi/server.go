package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/config"
)

type Server struct {
	http *http.Server
	log  *logrus.Entry
}

func NewServer(cfg config.Config, api *API, log *logrus.Entry) *Server {
	if cfg.Environment != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(TraceID())
	engine.Use(RequestLogger(log))
	engine.Use(MaxBodySize(cfg.MaxBodyBytes))
	engine.Use(CORS())

	registerRoutes(engine, api, cfg.AuthSecret, cfg.WebhookSecret)

	return &Server{
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func (s *Server) Run() error {
	s.log.WithField("addr", s.http.Addr).Info("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
