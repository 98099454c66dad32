package gym

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"stockenv/internal/env"
	"stockenv/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Server exposes one Environment over HTTP so a training loop in another
// process can drive it. Requests are serialized on the environment.
type Server struct {
	addr       string
	router     *gin.Engine
	schema     *jsonschema.Schema
	renderMode env.RenderMode
	renderFile string

	mu       sync.Mutex
	env      *env.Environment
	episodes int
}

type Config struct {
	Addr string
	Env  *env.Environment
	// RenderMode is used when a render request names no mode.
	RenderMode env.RenderMode
	RenderFile string
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Env == nil {
		return nil, errors.New("gym: environment is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9990"
	}
	if cfg.RenderMode == "" {
		cfg.RenderMode = env.RenderFile
	}
	if cfg.RenderFile == "" {
		cfg.RenderFile = env.DefaultRenderFile
	}
	schema, err := compileStepSchema()
	if err != nil {
		return nil, fmt.Errorf("compile step schema: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:       cfg.Addr,
		router:     router,
		schema:     schema,
		renderMode: cfg.RenderMode,
		renderFile: cfg.RenderFile,
		env:        cfg.Env,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	api := s.router.Group("/api/env")
	api.GET("/spaces", s.handleSpaces)
	api.GET("/state", s.handleState)
	api.POST("/reset", s.handleReset)
	api.POST("/step", s.handleStep)
	api.POST("/render", s.handleRender)
	api.POST("/close", s.handleClose)
}

func (s *Server) handleSpaces(c *gin.Context) {
	s.mu.Lock()
	lo, hi := s.env.RewardRange()
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"action_space": gin.H{
			"low":  []float64{env.ActionLow.Type, env.ActionLow.Amount},
			"high": []float64{env.ActionHigh.Type, env.ActionHigh.Amount},
		},
		"observation_space": gin.H{
			"low":   env.ObservationLow,
			"high":  env.ObservationHigh,
			"shape": []int{env.ObservationSize},
		},
		"reward_range": []float64{lo, hi},
	})
}

func (s *Server) handleState(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"state":      s.env.State().String(),
		"episode":    s.episodes,
		"rows":       s.env.Source().Len(),
		"last_price": s.env.LastPrice(),
		"params":     s.env.Params(),
		"portfolio":  s.env.Portfolio(),
	})
}

func (s *Server) handleReset(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs, err := s.env.Reset()
	if err != nil {
		writeError(c, err)
		return
	}
	s.episodes++
	logger.Debugf("[gym] reset episode=%d", s.episodes)
	c.JSON(http.StatusOK, gin.H{"observation": obs, "episode": s.episodes})
}

func (s *Server) handleStep(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := parseAction(s.schema, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.env.Step(action)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleRender(c *gin.Context) {
	var req struct {
		Mode     string `json:"mode"`
		Filename string `json:"filename"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	mode := s.renderMode
	if req.Mode != "" {
		mode = env.RenderMode(req.Mode)
	}
	filename := req.Filename
	if filename == "" {
		filename = s.renderFile
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.env.Render(mode, env.RenderOptions{Filename: filename}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode, "step": s.env.Account().CurrentStep})
}

func (s *Server) handleClose(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.env.Close(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, env.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, env.ErrInvalidAction), errors.Is(err, env.ErrUnsupportedRenderMode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Start serves until ctx is canceled, then shuts down and closes the environment.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("[gym] HTTP 服务已启动 addr=%s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.env.Close()
	case err := <-errCh:
		return err
	}
}
