// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
	"github.com/ThinkInAIXYZ/go-mcp/transport"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mcp-meal-vision/internal/analysis"
	"mcp-meal-vision/internal/quota"
	"mcp-meal-vision/internal/storage"
)

const (
	ServiceName = "meal-vision"
	Version     = "1.0.0"

	TransportHTTP = "http"
	TransportSSE  = "sse"
)

type Config struct {
	Host string
	Port int
	// Transport is http for the JSON tool endpoint only, or sse to also
	// serve MCP clients on /sse and /message.
	Transport string
	// PublicURL is the base URL SSE clients are told to post to. Empty means
	// http://<host>:<port>.
	PublicURL string
	// MaxBodyBytes caps a tool call body; base64 photos dominate its size.
	MaxBodyBytes int64
	// RateLimit is tool calls per second per client IP; 0 disables it.
	RateLimit float64
	RateBurst int
}

// Analyzer runs the photo analysis and recipe pipelines.
type Analyzer interface {
	Analyze(ctx context.Context, req *analysis.Request) (*analysis.Result, error)
	SuggestRecipes(ctx context.Context, req *analysis.RecipeRequest) (*analysis.RecipeSuggestions, error)
	Provider() analysis.Provider
}

type Deps struct {
	Storage  *storage.SQLiteStorage
	Analyzer Analyzer
	Limiter  *quota.Limiter
	Logger   log.Interface
}

type MealVisionServer struct {
	mcp        *server.Server
	sse        *transport.SSEHandler
	httpServer *http.Server
	router     *gin.Engine
	storage    *storage.SQLiteStorage
	analyzer   Analyzer
	limiter    *quota.Limiter
	logger     log.Interface
	config     *Config
	tools      map[string]tool
	now        func() time.Time

	// ctx bounds MCP tool calls, which outlive the HTTP request that
	// delivered them. It is canceled by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
	stopErr  error
}

func NewMealVisionServer(cfg *Config, deps Deps) (*MealVisionServer, error) {
	if deps.Storage == nil || deps.Analyzer == nil || deps.Limiter == nil {
		return nil, errors.New("storage, analyzer and limiter are required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	switch cfg.Transport {
	case "":
		cfg.Transport = TransportSSE
	case TransportHTTP, TransportSSE:
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}

	s := &MealVisionServer{
		storage:  deps.Storage,
		analyzer: deps.Analyzer,
		limiter:  deps.Limiter,
		logger:   deps.Logger,
		config:   cfg,
		now:      time.Now,
	}
	if s.logger == nil {
		s.logger = log.Log
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	mcpTransport, sseHandler, err := transport.NewSSEServerTransportAndHandler(
		s.messageURL(),
		transport.WithSSEServerTransportAndHandlerOptionLogger(s.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSE transport: %w", err)
	}
	s.sse = sseHandler

	mcpServer, err := server.NewServer(
		mcpTransport,
		server.WithServerInfo(protocol.Implementation{
			Name:    ServiceName,
			Version: Version,
		}),
		server.WithLogger(s.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	s.mcp = mcpServer

	s.tools = s.registerTools()
	s.router = s.routes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// messageURL is announced to SSE clients as the endpoint for their requests.
func (s *MealVisionServer) messageURL() string {
	base := strings.TrimRight(s.config.PublicURL, "/")
	if base == "" {
		host := s.config.Host
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "localhost"
		}
		base = fmt.Sprintf("http://%s:%d", host, s.config.Port)
	}
	return base + "/message"
}

func (s *MealVisionServer) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger), corsMiddleware(), gzipMiddleware())

	var limiter *clientLimiter
	if s.config.RateLimit > 0 {
		limiter = newClientLimiter(s.config.RateLimit, s.config.RateBurst)
	}

	router.POST("/", s.rateLimit(limiter), s.handleToolCall)
	router.OPTIONS("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/tools", s.handleListTools)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if s.config.Transport == TransportSSE {
		router.GET("/sse", gin.WrapH(s.sse.HandleSSE()))
		router.POST("/message", s.rateLimit(limiter), s.limitBody, gin.WrapH(s.sse.HandleMessage()))
	}
	return router
}

// Handler exposes the router, mainly for tests.
func (s *MealVisionServer) Handler() http.Handler {
	return s.router
}

func (s *MealVisionServer) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)
	c.Next()
}

func (s *MealVisionServer) handleToolCall(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)

	var request protocol.CallToolRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&request); err != nil {
		s.writeError(c, "", paramError("invalid JSON: %v", err))
		return
	}

	t, ok := s.tools[request.Name]
	if !ok {
		c.JSON(http.StatusNotFound, errorBody{
			Error:   "unknown_tool",
			Status:  http.StatusNotFound,
			Message: fmt.Sprintf("Unknown tool: %s", request.Name),
		})
		return
	}

	result, err := t.handler(c.Request.Context(), &request)
	if err != nil {
		s.writeError(c, request.Name, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *MealVisionServer) handleListTools(c *gin.Context) {
	list := make([]toolInfo, 0, len(s.tools))
	for _, name := range toolOrder {
		if t, ok := s.tools[name]; ok {
			list = append(list, toolInfo{Name: name, Description: t.description, InputSchema: t.schema})
		}
	}
	c.JSON(http.StatusOK, gin.H{"tools": list})
}

func (s *MealVisionServer) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	provider := s.analyzer.Provider()
	body := gin.H{
		"status":    "healthy",
		"service":   ServiceName,
		"version":   Version,
		"transport": s.config.Transport,
		"provider":  provider.Name(),
		"model":     provider.Model(),
		// Analysis calls fail with missing_credentials until a key is set.
		"provider_configured": provider.HasCredentials(),
	}
	if err := s.storage.Ping(ctx); err != nil {
		body["status"] = "unhealthy"
		body["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (s *MealVisionServer) Start(ctx context.Context) error {
	s.logger.WithFields(log.Fields{
		"addr":      s.httpServer.Addr,
		"transport": s.config.Transport,
		"version":   Version,
	}).Info("server.starting")
	if s.config.Transport == TransportSSE {
		s.logger.WithField("message_url", s.messageURL()).Info("mcp.sse.ready")
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop waits for in-flight MCP calls and closes SSE streams, then drains
// HTTP requests until ctx expires. Later calls return the first result.
func (s *MealVisionServer) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		var errs []error
		if err := s.mcp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mcp shutdown: %w", err))
		}
		s.cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		s.stopErr = errors.Join(errs...)
	})
	return s.stopErr
}

func (s *MealVisionServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
