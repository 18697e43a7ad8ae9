package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"

	"github.com/chaos-io/nobg/refine"
	"github.com/chaos-io/nobg/rembg"
	"github.com/chaos-io/nobg/util"
)

// 上传图片大小上限
const maxUploadSize = 32 << 20

// RemoverFactory 每个请求可以带自己的模型和选项
type RemoverFactory func(opts rembg.Options) (rembg.Remover, error)

// errURLFetchDisabled 未开启 WithURLFetch 时 url 字段一律拒绝
var errURLFetchDisabled = errors.New("url fetching is disabled")

type Server struct {
	newRemover RemoverFactory
	defaults   rembg.Options
	thresholds refine.Thresholds
	allowURL   bool
	engine     *gin.Engine
}

type Option func(*Server)

// WithURLFetch 允许表单用 url 字段代替上传文件，默认关闭
func WithURLFetch(allow bool) Option {
	return func(s *Server) {
		s.allowURL = allow
	}
}

func New(newRemover RemoverFactory, defaults rembg.Options, thresholds refine.Thresholds, opts ...Option) *Server {
	s := &Server{
		newRemover: newRemover,
		defaults:   defaults,
		thresholds: thresholds,
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), accessLog())
	engine.MaxMultipartMemory = maxUploadSize

	engine.GET("/healthz", s.healthz)
	api := engine.Group("/api")
	api.GET("/models", s.models)
	api.POST("/remove", s.remove)
	api.POST("/refine", s.refineOnly)

	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 阻塞直到 ctx 结束，然后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": rembg.Models, "default": s.defaults.Model.Name})
}

// remove 字段与 rembg s 保持一致：file（开启后也可以是 url）、model、a、om
func (s *Server) remove(c *gin.Context) {
	opts, err := s.requestOptions(c)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	img, err := s.inputImage(c)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	remover, err := s.newRemover(opts)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}

	removed, err := remover.Remove(c.Request.Context(), img)
	if err != nil {
		abort(c, http.StatusBadGateway, fmt.Errorf("remove background: %w", err))
		return
	}

	s.writeRefined(c, removed)
}

// refineOnly 只做透明度修正，适合已经抠过图的输入
func (s *Server) refineOnly(c *gin.Context) {
	img, err := s.inputImage(c)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	s.writeRefined(c, img)
}

// writeRefined 与批处理输出一致，全不透明的结果写成 RGB 颜色类型
func (s *Server) writeRefined(c *gin.Context, img image.Image) {
	out := s.thresholds.Refine(refine.ToNRGBA(img))

	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, out); err != nil {
		abort(c, http.StatusInternalServerError, fmt.Errorf("encode png: %w", err))
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) requestOptions(c *gin.Context) (rembg.Options, error) {
	opts := s.defaults
	if v := c.PostForm("model"); v != "" {
		m, ok := rembg.LookupModel(v)
		if !ok {
			return opts, fmt.Errorf("unknown model %q", v)
		}
		opts.Model = m
	}
	if v := c.PostForm("a"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid a: %w", err)
		}
		opts.AlphaMatting = b
	}
	if v := c.PostForm("om"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid om: %w", err)
		}
		opts.MaskOnly = b
	}
	return opts, nil
}

func (s *Server) inputImage(c *gin.Context) (image.Image, error) {
	if url := c.PostForm("url"); url != "" {
		if !s.allowURL {
			return nil, errURLFetchDisabled
		}
		img, err := util.DownloadImage(c.Request.Context(), url)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", url, err)
		}
		return img, nil
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing file: %w", err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fh.Filename, err)
	}
	return img, nil
}

func abort(c *gin.Context, code int, err error) {
	slog.Warn("request failed", "request_id", c.GetString("request_id"), "path", c.FullPath(), "error", err)
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ksuid.New().String()
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).Round(time.Millisecond))
	}
}
