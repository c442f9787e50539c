package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avelar/fxpilot/internal/models"
	"github.com/avelar/fxpilot/internal/workflow"
)

const sseHeartbeatInterval = 15 * time.Second

// Analyzer is the engine surface the HTTP layer needs.
type Analyzer interface {
	Analyze(ctx context.Context, query string, opts *workflow.Options) (*models.Result, error)
	AnalyzeStream(ctx context.Context, query string, opts *workflow.Options) (<-chan models.StreamEvent, error)
	Info() map[string]any
}

// Server exposes the analysis engine over HTTP: a blocking JSON endpoint and
// an SSE stream mirroring the engine's event channel.
type Server struct {
	addr   string
	router *gin.Engine
	engine Analyzer
}

func NewServer(addr string, engine Analyzer) *Server {
	if addr == "" {
		addr = ":8000"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), corsAllowAll(), requestLogger())

	s := &Server{addr: addr, router: router, engine: engine}

	router.GET("/health", s.handleHealth)
	router.GET("/info", s.handleInfo)
	router.POST("/analyze", s.handleAnalyze)
	router.GET("/analyze/stream", s.handleStreamGET)
	router.POST("/analyze/stream", s.handleStreamPOST)

	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

type analyzeRequest struct {
	Query           string  `json:"query"`
	AccountBalance  float64 `json:"account_balance"`
	MaxRiskPerTrade float64 `json:"max_risk_per_trade"`
}

func (r analyzeRequest) options() *workflow.Options {
	if r.AccountBalance == 0 && r.MaxRiskPerTrade == 0 {
		return nil
	}
	return &workflow.Options{
		AccountBalance:  r.AccountBalance,
		MaxRiskPerTrade: r.MaxRiskPerTrade,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Info())
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	result, err := s.engine.Analyze(c.Request.Context(), req.Query, req.options())
	if err != nil {
		log.Printf("[Server] analyze failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleStreamGET(c *gin.Context) {
	req := analyzeRequest{Query: c.Query("query")}
	s.streamAnalysis(c, req)
}

func (s *Server) handleStreamPOST(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.streamAnalysis(c, req)
}

// streamAnalysis writes the engine's event channel as SSE frames. A client
// disconnect does not cancel the run: the workflow finishes in the background
// and its remaining events are discarded.
func (s *Server) streamAnalysis(c *gin.Context, req analyzeRequest) {
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	runCtx := context.WithoutCancel(c.Request.Context())
	events, err := s.engine.AnalyzeStream(runCtx, req.Query, req.options())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()
	clientGone := c.Request.Context().Done()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[Server] drop unencodable event %s: %v", ev.Type, err)
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			c.Writer.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		case <-clientGone:
			go drain(events)
			return
		}
	}
}

// drain keeps the emitter's consumer alive after a disconnect so the
// background run can finish and be garbage collected.
func drain(events <-chan models.StreamEvent) {
	for range events {
	}
}

func corsAllowAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		log.Printf("[Server] %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
