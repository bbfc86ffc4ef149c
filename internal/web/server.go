// Package web serves the upload page and a small JSON API over the application state.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/basel-ax/orthoview/internal/app"
	"github.com/basel-ax/orthoview/internal/domain"
	"github.com/basel-ax/orthoview/internal/repository"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server wires the HTTP routes to the application state
type Server struct {
	ctx            context.Context
	state          *app.State
	archive        repository.GenerationRepository
	gatherer       prometheus.Gatherer
	maxUploadBytes int64
	logger         *zap.Logger
	engine         *gin.Engine
}

// Options configures optional server collaborators
type Options struct {
	// Archive may be nil, which disables the generations API
	Archive        repository.GenerationRepository
	Gatherer       prometheus.Gatherer
	MaxUploadBytes int64
}

// NewServer creates the HTTP front end.
// Generations started from a request run on ctx, not on the request context.
func NewServer(ctx context.Context, state *app.State, opts Options, logger *zap.Logger) *Server {
	s := &Server{
		ctx:            ctx,
		state:          state,
		archive:        opts.Archive,
		gatherer:       opts.Gatherer,
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         logger.With(zap.String("component", "web")),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = 20 << 20
	}

	engine := gin.New()
	engine.Use(RequestLogger(s.logger))
	engine.Use(gin.CustomRecovery(HandlePanics(s.logger)))
	engine.MaxMultipartMemory = s.maxUploadBytes
	engine.SetHTMLTemplate(template.Must(template.New("").ParseFS(templateFS, "templates/*.html")))

	engine.GET("/", s.index)
	engine.GET("/preview", s.preview)
	engine.POST("/upload", s.upload)
	engine.POST("/generate", s.generate)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := engine.Group("/api")
	{
		api.GET("/state", s.getState)
		api.POST("/generate", s.apiGenerate)
		api.GET("/generations", s.listGenerations)
		api.GET("/generations/:id", s.getGeneration)
	}

	s.engine = engine
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

type viewSlot struct {
	Title string
	Src   template.URL
}

type pageData struct {
	app.Snapshot
	HasResults bool
	PreviewURL string
	Views      []viewSlot
}

func newPageData(snap app.Snapshot) pageData {
	data := pageData{
		Snapshot:   snap,
		HasResults: !snap.Results.IsEmpty(),
		PreviewURL: fmt.Sprintf("/preview?v=%d", snap.UpdatedAt.UnixNano()),
	}
	for _, kind := range domain.AllViewKinds {
		slot := viewSlot{Title: viewTitle(kind)}
		if img := snap.Results.Get(kind); img != "" {
			// generated views are always rendered as PNG data URLs
			slot.Src = template.URL("data:image/png;base64," + img)
		}
		data.Views = append(data.Views, slot)
	}
	return data
}

func viewTitle(kind domain.ViewKind) string {
	switch kind {
	case domain.ViewFront:
		return "Front"
	case domain.ViewSide:
		return "Side"
	case domain.ViewTop:
		return "Top"
	}
	return string(kind)
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", newPageData(s.state.Snapshot()))
}

func (s *Server) preview(c *gin.Context) {
	img, ok := s.state.Image()
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}

	// The declared type comes from the client; only content that sniffs as a raster image is echoed back
	mtype := mimetype.Detect(img.Content)
	if !strings.HasPrefix(mtype.String(), "image/") || mtype.Is("image/svg+xml") {
		c.Status(http.StatusUnsupportedMediaType)
		return
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, mtype.String(), img.Content)
}

func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusRequestEntityTooLarge, "the uploaded file is too large")
			return
		}
		c.String(http.StatusBadRequest, "an image file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		s.logger.Error("Error opening upload", zap.Error(err))
		c.String(http.StatusBadRequest, "could not read the uploaded file")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("Error reading upload", zap.Error(err))
		c.String(http.StatusBadRequest, "could not read the uploaded file")
		return
	}

	err = s.state.Upload(domain.UploadedImage{
		Content:     content,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
	})
	if errors.Is(err, domain.ErrGenerationInProgress) {
		c.String(http.StatusConflict, err.Error())
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) generate(c *gin.Context) {
	if status, err := s.startGeneration(); err != nil {
		c.String(status, err.Error())
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) apiGenerate(c *gin.Context) {
	if status, err := s.startGeneration(); err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, s.state.Snapshot())
}

func (s *Server) startGeneration() (int, error) {
	err := s.state.StartGenerate(s.ctx)
	switch {
	case err == nil:
		return http.StatusAccepted, nil
	case errors.Is(err, domain.ErrNoImage):
		return http.StatusBadRequest, err
	case errors.Is(err, domain.ErrGenerationInProgress):
		return http.StatusConflict, err
	default:
		return http.StatusInternalServerError, err
	}
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Snapshot())
}

type generationSummary struct {
	ID        string `json:"id"`
	FileName  string `json:"fileName"`
	MediaType string `json:"mediaType"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func (s *Server) listGenerations(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "generation archive is disabled"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	records, err := s.archive.ListRecent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Error listing generations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list generations"})
		return
	}

	summaries := make([]generationSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, generationSummary{
			ID:        rec.ID,
			FileName:  rec.FileName,
			MediaType: rec.MediaType,
			Status:    string(rec.Status),
			Error:     rec.Error,
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) getGeneration(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "generation archive is disabled"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "generation not found"})
		return
	}

	rec, err := s.archive.GetByID(c.Request.Context(), id.String())
	if err != nil {
		s.logger.Error("Error getting generation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get generation"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "generation not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        rec.ID,
		"fileName":  rec.FileName,
		"mediaType": rec.MediaType,
		"status":    string(rec.Status),
		"error":     rec.Error,
		"views":     rec.Views,
		"createdAt": rec.CreatedAt.UTC().Format(time.RFC3339),
	})
}
