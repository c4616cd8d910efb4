package http

import (
	"context"
	"net/http"
	"time"

	"jumpgen/internal/service"
)

type Server struct {
	srv *http.Server
}

func NewServer(addr string, svc service.GenerationService) *Server {
	mux := http.NewServeMux()
	h := NewHandler(svc)
	h.Register(mux)

	return &Server{
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
			// Generation holds the request through model retries and
			// backoff, so the write timeout must cover the worst case:
			// 3 attempts plus 2s+4s of backoff.
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	return s.srv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
