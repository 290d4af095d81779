package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/falazar/bookworm-languages/internal/config"
	"github.com/falazar/bookworm-languages/internal/epub"
	"github.com/falazar/bookworm-languages/internal/storage"
	"github.com/falazar/bookworm-languages/internal/translation"
)

type Server struct {
	config         *config.Config
	logger         *logrus.Logger
	epubParser     *epub.Parser
	epubBuilder    *epub.Builder
	store          *storage.Store
	translationSvc *translation.Service
	router         *gin.Engine
	wsHub          *Hub

	booksMu sync.RWMutex
	books   map[string]*epub.Book
}

func New(cfg *config.Config, logger *logrus.Logger, store *storage.Store) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	epubParser := epub.NewParser(logger, cfg.App.TempDir)
	epubBuilder := epub.NewBuilder(logger)

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	cache, err := translation.NewCache(context.Background(), store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load translation cache: %w", err)
	}
	logger.Infof("Translation cache ready with %d entries", cache.Len())

	chunkTranslator := translation.NewChunkTranslator(
		provider,
		cache,
		translation.PairingPolicy(cfg.Translation.PairingPolicy),
		logger,
	)
	pipeline := translation.NewChapterPipeline(
		chunkTranslator,
		cfg.Translation.ChunkLimit,
		cfg.Translation.Cooldown.Duration,
		logger,
	)
	orchestrator := translation.NewOrchestrator(epubParser, epubBuilder, pipeline, logger)

	wsHub := NewHub(logger)
	go wsHub.Run()

	translationSvc := translation.NewService(orchestrator, logger, wsHub)

	s := &Server{
		config:         cfg,
		logger:         logger,
		epubParser:     epubParser,
		epubBuilder:    epubBuilder,
		store:          store,
		translationSvc: translationSvc,
		wsHub:          wsHub,
		books:          make(map[string]*epub.Book),
	}

	s.setupRoutes()
	return s, nil
}

func buildProvider(cfg *config.Config, logger *logrus.Logger) (translation.Provider, error) {
	switch cfg.Translation.Provider {
	case "google":
		return translation.NewGoogleWebProvider(cfg.Google.Endpoint, cfg.Server.ReadTimeout.Duration, logger), nil
	case "openai":
		return translation.NewOpenAIProvider(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Temperature,
			cfg.Translation.MaxRetries,
			cfg.Translation.RetryDelay.Duration,
			logger,
		), nil
	default:
		return nil, fmt.Errorf("unknown translation provider: %s", cfg.Translation.Provider)
	}
}

func (s *Server) Handler() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router = gin.New()

	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.corsMiddleware())
	s.router.Use(gin.Recovery())

	s.router.Static("/static", "web/static")
	s.router.LoadHTMLGlob("web/templates/*")

	s.router.GET("/", s.handleHome)
	s.router.POST("/upload", s.handleUpload)
	s.router.POST("/translate", s.handleTranslate)
	s.router.GET("/status/:book", s.handleStatus)
	s.router.GET("/download/:book", s.handleDownload)
	s.router.GET("/read/:book", s.handleReader)

	s.router.GET("/api/chapters/:book", s.handleGetChapters)
	s.router.GET("/api/paragraphs/:book", s.handleGetParagraphs)
	s.router.GET("/api/progress/:book", s.handleGetProgress)
	s.router.POST("/api/progress", s.handleSaveProgress)
	s.router.DELETE("/api/books/:book", s.handleDeleteBook)

	// Broadcast hub for translation runs, plus one playback session
	// socket per open reader page.
	s.router.GET("/ws", s.HandleWebSocket)
	s.router.GET("/ws/player/:book", s.handlePlayerSocket)

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "websocket_clients": s.wsHub.GetClientCount()})
	})
}

// book returns a loaded book, falling back to the extracted directory
// so an uploaded book survives a restart.
func (s *Server) book(id string) (*epub.Book, bool) {
	s.booksMu.RLock()
	book, exists := s.books[id]
	s.booksMu.RUnlock()
	if exists {
		return book, true
	}

	book, err := s.epubParser.LoadFromDirectory(id)
	if err != nil {
		return nil, false
	}

	s.booksMu.Lock()
	s.books[id] = book
	s.booksMu.Unlock()
	return book, true
}

func (s *Server) rememberBook(book *epub.Book) {
	s.booksMu.Lock()
	s.books[book.ID] = book
	s.booksMu.Unlock()
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		s.logger.WithFields(logrus.Fields{
			"status":     param.StatusCode,
			"method":     param.Method,
			"path":       param.Path,
			"ip":         param.ClientIP,
			"user_agent": param.Request.UserAgent(),
			"latency":    param.Latency,
		}).Info("HTTP Request")
		return ""
	})
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
