// Package server 提供本地控制接口：切换录制、查询状态与下载记录、事件流和指标
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tabclip/internal/capture"
	"tabclip/internal/logger"
	"tabclip/pkg/api"
	"tabclip/pkg/model"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server HTTP 控制服务
type Server struct {
	svc api.Service
	log logger.Logger
	srv *http.Server
}

// New 创建服务
func New(addr string, svc api.Service, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	s := &Server{svc: svc, log: l.With("component", "http")}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes 路由表
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Post("/toggle", s.toggle)
		r.Post("/stop", s.stop)
		r.Get("/targets", s.targets)
		r.Post("/targets/{id}/select", s.selectTab)
		r.Get("/downloads", s.downloads)
		r.Get("/events", s.events)
	})
	return r
}

// ListenAndServe 阻塞直到 ctx 结束
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP 服务已启动", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	switch err := s.svc.Toggle(); {
	case err == nil:
		writeJSON(w, http.StatusOK, s.svc.Status())
	case errors.Is(err, capture.ErrNoTab):
		writeError(w, http.StatusConflict, "no current tab")
	case errors.Is(err, capture.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	s.svc.Stop()
	writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *Server) targets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListTargets())
}

func (s *Server) selectTab(w http.ResponseWriter, r *http.Request) {
	id := model.TabID(chi.URLParam(r, "id"))
	if err := s.svc.SelectTab(id); err != nil {
		writeError(w, http.StatusNotFound, "unknown tab")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *Server) downloads(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	list, err := s.svc.Downloads(r.Context(), limit)
	if err != nil {
		s.log.Error("查询下载记录失败", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list downloads")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// events 以 Server-Sent Events 推送会话事件
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ch, cancel := s.svc.SubscribeEvents(32)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
