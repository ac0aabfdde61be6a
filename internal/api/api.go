package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dropzone/internal/engine"
	"dropzone/internal/logging"
	"dropzone/internal/metrics"
	"dropzone/internal/storage"
	"dropzone/internal/upload"
)

type Options struct {
	Provider      storage.StorageProvider
	Decoder       *upload.Decoder
	Broadcaster   *engine.Broadcaster
	Metrics       *metrics.Metrics
	Logger        logging.Logger
	MaxUploadSize int64
	// Heartbeat is the keepalive period of live listing streams.
	Heartbeat time.Duration
}

type Server struct {
	provider    storage.StorageProvider
	decoder     *upload.Decoder
	broadcaster *engine.Broadcaster
	metrics     *metrics.Metrics
	logger      logging.Logger
	maxUpload   int64
	heartbeat   time.Duration

	upgrader websocket.Upgrader
	router   *gin.Engine

	quit      chan struct{}
	closeOnce sync.Once
}

type StatusResponse struct {
	Status        string `json:"status"`
	Files         int    `json:"files"`
	Subscribers   int    `json:"subscribers"`
	MaxUploadSize string `json:"maxUploadSize"`
}

func NewServer(opts Options) *Server {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}

	server := &Server{
		provider:    opts.Provider,
		decoder:     opts.Decoder,
		broadcaster: opts.Broadcaster,
		metrics:     opts.Metrics,
		logger:      logger,
		maxUpload:   opts.MaxUploadSize,
		heartbeat:   heartbeat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the service is meant for the local network
			},
		},
		router: router,
		quit:   make(chan struct{}),
	}

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+upload.FilenameHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	router.GET("/", server.handleIndex)
	router.POST("/upload", server.handleUpload)

	uploads := router.Group("/uploads")
	uploads.GET("", server.handleListing)
	uploads.GET("/events", server.handleEvents)
	uploads.GET("/ws", server.handleWebSocket)
	uploads.GET("/:name", server.handleDownload)

	apiGroup := router.Group("/api")
	apiGroup.GET("/status", server.handleStatus)

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	return server
}

// Handler returns the router for use in an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close ends every open listing stream. It should be called before the
// http.Server is shut down, which otherwise waits on those streams.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
}

func (s *Server) handleStatus(c *gin.Context) {
	files, _ := storage.Snapshot(s.provider)
	c.JSON(http.StatusOK, StatusResponse{
		Status:        "running",
		Files:         len(files),
		Subscribers:   s.broadcaster.Len(),
		MaxUploadSize: humanizeSize(s.maxUpload),
	})
}
