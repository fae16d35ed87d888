// Package server exposes ingestion and chat over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"nexus/internal/domain"
	"nexus/internal/service"
)

type Ingester interface {
	IngestDocument(ctx context.Context, content []byte, fileName string) domain.IngestionResult
	IngestText(ctx context.Context, content, fileName string) domain.IngestionResult
	IngestBatch(ctx context.Context, docs []domain.Document) domain.BatchReport
}

type Answerer interface {
	Answer(ctx context.Context, messages []domain.Message) (domain.Answer, error)
}

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Server struct {
	ingest    Ingester
	chat      Answerer
	store     Counter
	maxUpload int64
	log       *zap.Logger
}

// New builds a server. maxUploadMB bounds request bodies; zero means 25MB.
func New(ingest Ingester, chat Answerer, store Counter, maxUploadMB int, log *zap.Logger) *Server {
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		ingest:    ingest,
		chat:      chat,
		store:     store,
		maxUpload: int64(maxUploadMB) << 20,
		log:       log.Named("http"),
	}
}

// Echo returns the router with all routes registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.Error(v.Error),
			)
			return nil
		},
	}))

	api := e.Group("/api")
	api.Use(middleware.BodyLimit(bodyLimit(s.maxUpload)))
	api.POST("/ingest", s.handleIngest)
	api.POST("/ingest/batch", s.handleIngestBatch)
	api.POST("/chat", s.handleChat)

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	e := s.Echo()
	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(addr) }()
	s.log.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

type ingestTextRequest struct {
	Content  string `json:"content"`
	FileName string `json:"fileName"`
}

func (s *Server) handleIngest(c echo.Context) error {
	ctx := c.Request().Context()
	var result domain.IngestionResult
	if isMultipart(c) {
		fh, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorBody("missing file"))
		}
		data, err := readUpload(fh)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		}
		result = s.ingest.IngestDocument(ctx, data, fh.Filename)
	} else {
		var req ingestTextRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorBody("invalid request"))
		}
		if strings.TrimSpace(req.FileName) == "" {
			return c.JSON(http.StatusBadRequest, errorBody("fileName is required"))
		}
		result = s.ingest.IngestText(ctx, req.Content, req.FileName)
	}
	if !result.Success {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleIngestBatch(c echo.Context) error {
	if !isMultipart(c) {
		return c.JSON(http.StatusBadRequest, errorBody("multipart form with files is required"))
	}
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid multipart form"))
	}
	files := form.File["files"]
	if len(files) == 0 {
		return c.JSON(http.StatusBadRequest, errorBody("missing files"))
	}
	docs := make([]domain.Document, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		}
		docs = append(docs, domain.Document{FileName: fh.Filename, Content: data})
	}
	return c.JSON(http.StatusOK, s.ingest.IngestBatch(c.Request().Context(), docs))
}

type chatRequest struct {
	Messages []domain.Message `json:"messages"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request"))
	}
	ans, err := s.chat.Answer(c.Request().Context(), req.Messages)
	switch {
	case errors.Is(err, service.ErrNoQuestion), errors.Is(err, service.ErrEmptyQuery):
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	case err != nil:
		s.log.Error("chat failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, errorBody("failed to answer: "+err.Error()))
	}
	if ans.Sources == nil {
		ans.Sources = []string{}
	}
	return c.JSON(http.StatusOK, ans)
}

func (s *Server) handleHealth(c echo.Context) error {
	body := map[string]any{"status": "ok"}
	if s.store != nil {
		n, err := s.store.Count(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
		}
		body["records"] = n
	}
	return c.JSON(http.StatusOK, body)
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// bodyLimit renders bytes in the "25M" form echo's BodyLimit expects.
func bodyLimit(n int64) string {
	return strconv.FormatInt(n>>20, 10) + "M"
}
