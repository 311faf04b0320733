// Package server exposes the converter over HTTP.
//
// Routes:
//
//	POST /v1/convert   multipart "files", optional "quality", "lossless", "format" (json|archive)
//	GET  /healthz
//	GET  /metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deepteams/webpconv"
	"github.com/deepteams/webpconv/internal/archive"
	"github.com/deepteams/webpconv/internal/logging"
	"github.com/deepteams/webpconv/internal/metrics"
	"github.com/deepteams/webpconv/internal/sink"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Options configures the HTTP service.
type Options struct {
	Converter *webpconv.Converter
	// Policy applies when a request does not override quality or lossless.
	Policy webpconv.Policy
	Logger *slog.Logger
	// Metrics and Gatherer back GET /metrics. Both may be nil.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// MaxUploadBytes bounds the request body. Zero means 64 MiB.
	MaxUploadBytes int64
	// Debug enables gin debug mode.
	Debug bool
}

// Server is the HTTP front end of a Converter.
type Server struct {
	opts    Options
	log     *slog.Logger
	engine  *gin.Engine
	handler http.Handler
}

// New builds the router.
func New(opts Options) (*Server, error) {
	if opts.Converter == nil {
		return nil, errors.New("server: converter is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.MaxMultipartMemory = 32 << 20
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(loggingMiddleware(opts.Logger))
	if opts.Metrics != nil {
		engine.Use(opts.Metrics.Middleware())
	}

	s := &Server{opts: opts, log: opts.Logger, engine: engine}
	engine.GET("/healthz", s.handleHealth)
	if opts.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	engine.POST("/v1/convert", s.handleConvert)

	// JSON responses are compressed when the client allows it; WebP and zip
	// bodies are left alone by the default content-type filter.
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(512))
	if err != nil {
		return nil, fmt.Errorf("server: compression wrapper: %w", err)
	}
	s.handler = wrap(engine)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Timeouts bound a running HTTP server.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Shutdown time.Duration
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, t Timeouts) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       t.Read,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      t.Write,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdown := t.Shutdown
	if shutdown <= 0 {
		shutdown = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{
		"status":  "ok",
		"backend": s.opts.Converter.Encoder().Name(),
	})
}

func (s *Server) handleConvert(c *gin.Context) {
	if c.Request.ContentLength > s.opts.MaxUploadBytes {
		respondError(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds %d bytes", s.opts.MaxUploadBytes), nil)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", s.opts.MaxUploadBytes), nil)
			return
		}
		respondError(c, http.StatusBadRequest, "expected a multipart form: "+err.Error(), nil)
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		respondError(c, http.StatusBadRequest, `no files in form field "files"`, nil)
		return
	}
	policy, err := s.policyFromForm(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if !policy.Lossless && !s.opts.Converter.Encoder().Lossy() {
		respondError(c, http.StatusBadRequest,
			fmt.Sprintf("backend %s only supports lossless output", s.opts.Converter.Encoder().Name()), nil)
		return
	}

	srcs, err := readSources(headers)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	report, err := s.opts.Converter.ConvertAll(c.Request.Context(), srcs, policy)
	if err != nil {
		// The client went away.
		s.log.Warn("batch interrupted", "request_id", requestID(c), "err", err, "skipped", report.Skipped)
		respondError(c, http.StatusServiceUnavailable, "conversion interrupted", nil)
		return
	}
	s.log.Info("batch converted",
		"request_id", requestID(c),
		"files", len(srcs),
		"succeeded", report.Succeeded(),
		"failed", report.Failed(),
		"reduction", report.Reduction())

	c.Header("X-Webpconv-Succeeded", strconv.Itoa(report.Succeeded()))
	c.Header("X-Webpconv-Failed", strconv.Itoa(report.Failed()))

	switch c.DefaultPostForm("format", "json") {
	case "json":
		respondSuccess(c, http.StatusOK, NewReportJSON(requestID(c), report))
	case "archive":
		s.writeArchive(c, report)
	default:
		respondError(c, http.StatusBadRequest, `format must be "json" or "archive"`, nil)
	}
}

func (s *Server) writeArchive(c *gin.Context, report *webpconv.Report) {
	switch report.Succeeded() {
	case 0:
		respondError(c, http.StatusUnprocessableEntity, "no file could be converted",
			NewReportJSON(requestID(c), report))
	case 1:
		res := report.Results[0]
		c.Header("Content-Disposition", attachment(res.OutputName()))
		c.Data(http.StatusOK, sink.ContentTypeWebP, res.Data)
	default:
		c.Header("Content-Disposition", attachment("webp_images.zip"))
		c.Header("Content-Type", archive.ContentType)
		c.Status(http.StatusOK)
		if err := archive.Write(c.Writer, archive.FromResults(report.Results)); err != nil {
			s.log.Error("writing archive", "request_id", requestID(c), "err", err)
		}
	}
}

func (s *Server) policyFromForm(c *gin.Context) (webpconv.Policy, error) {
	p := s.opts.Policy
	if v := c.PostForm("quality"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil || q < 0 || q > 100 {
			return p, fmt.Errorf("quality must be an integer in [0,100], got %q", v)
		}
		p.Quality = q
	}
	if v := c.PostForm("lossless"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("lossless must be a boolean, got %q", v)
		}
		p.Lossless = b
	}
	return p, nil
}

func readSources(headers []*multipart.FileHeader) ([]webpconv.Source, error) {
	srcs := make([]webpconv.Source, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
		}
		srcs = append(srcs, webpconv.Source{Name: fh.Filename, Data: data})
	}
	return srcs, nil
}

func attachment(name string) string {
	return "attachment; filename=" + strconv.Quote(name)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}

func loggingMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"request_id", requestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}
