package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/nobg/refine"
	"github.com/chaos-io/nobg/rembg"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRemover struct {
	err   error
	calls int
}

// Remove 把右半边变成半透明偏白像素
func (f *fakeRemover) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := refine.ToNRGBA(img)
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X + b.Dx()/2; x < b.Max.X; x++ {
			out.SetNRGBA(x, y, color.NRGBA{220, 220, 220, 100})
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, remover rembg.Remover, seen *rembg.Options, opts ...Option) *Server {
	t.Helper()
	return New(func(o rembg.Options) (rembg.Remover, error) {
		if seen != nil {
			*seen = o
		}
		return remover, nil
	}, rembg.DefaultOptions(), refine.DefaultThresholds, opts...)
}

func multipartBody(t *testing.T, fields map[string]string, img image.Image) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if img != nil {
		part, err := w.CreateFormFile("file", "in.png")
		require.NoError(t, err)
		require.NoError(t, png.Encode(part, img))
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func opaque(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 0; y < h; y++ {
		img.SetNRGBA(0, y, color.NRGBA{30, 30, 30, 255})
	}
	return img
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(t, rembg.NewNopRemover(), nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestServer_Models(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(t, rembg.NewNopRemover(), nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Models  []rembg.Model `json:"models"`
		Default string        `json:"default"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Models, 5)
	assert.Equal(t, "u2net", resp.Default)
}

func TestServer_Remove(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fields    map[string]string
		img       image.Image
		remover   rembg.Remover
		wantCode  int
		wantModel string
		wantAlpha bool
		wantMask  bool
	}{
		{
			name:      "默认参数",
			img:       opaque(4, 2),
			remover:   &fakeRemover{},
			wantCode:  http.StatusOK,
			wantModel: "u2net",
			wantAlpha: true,
		},
		{
			name:      "请求覆盖模型和选项",
			fields:    map[string]string{"model": "2", "a": "false", "om": "true"},
			img:       opaque(4, 2),
			remover:   &fakeRemover{},
			wantCode:  http.StatusOK,
			wantModel: "u2netp",
			wantMask:  true,
		},
		{
			name:     "未知模型",
			fields:   map[string]string{"model": "sam"},
			img:      opaque(2, 2),
			remover:  &fakeRemover{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "缺少文件",
			remover:  &fakeRemover{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "模型失败",
			img:      opaque(2, 2),
			remover:  &fakeRemover{err: errors.New("onnx runtime crashed")},
			wantCode: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen rembg.Options
			srv := newTestServer(t, tt.remover, &seen)
			body, contentType := multipartBody(t, tt.fields, tt.img)
			req := httptest.NewRequest(http.MethodPost, "/api/remove", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			srv.Handler().ServeHTTP(rec, req)

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"error"`)
				return
			}

			assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantModel, seen.Model.Name)
			assert.Equal(t, tt.wantAlpha, seen.AlphaMatting)
			assert.Equal(t, tt.wantMask, seen.MaskOnly)

			out, err := png.Decode(rec.Body)
			require.NoError(t, err)
			nrgba := refine.ToNRGBA(out)
			assert.Equal(t, color.NRGBA{30, 30, 30, 255}, nrgba.NRGBAAt(0, 0))
			assert.Equal(t, color.NRGBA{220, 220, 220, 0}, nrgba.NRGBAAt(3, 1))
		})
	}
}

func TestServer_Refine(t *testing.T) {
	t.Parallel()

	body, contentType := multipartBody(t, nil, opaque(2, 1))
	req := httptest.NewRequest(http.MethodPost, "/api/refine", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newTestServer(t, rembg.NewNopRemover(), nil).Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out, err := png.Decode(rec.Body)
	require.NoError(t, err)
	nrgba := refine.ToNRGBA(out)
	assert.Equal(t, color.NRGBA{30, 30, 30, 255}, nrgba.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{255, 255, 255, 0}, nrgba.NRGBAAt(1, 0))
}

func TestServer_Refine_URL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		opts      []Option
		wantCode  int
		wantFetch int32
	}{
		{"默认拒绝url", nil, http.StatusBadRequest, 0},
		{"显式关闭", []Option{WithURLFetch(false)}, http.StatusBadRequest, 0},
		{"开启后下载", []Option{WithURLFetch(true)}, http.StatusOK, 1},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var fetched atomic.Int32
			origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fetched.Add(1)
				_ = png.Encode(w, opaque(2, 1))
			}))
			defer origin.Close()

			body, contentType := multipartBody(t, map[string]string{"url": origin.URL + "/a.png"}, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/refine", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			newTestServer(t, rembg.NewNopRemover(), nil, tt.opts...).Handler().ServeHTTP(rec, req)

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantFetch, fetched.Load())
			if tt.wantCode != http.StatusOK {
				assert.Contains(t, rec.Body.String(), "url fetching is disabled")
				return
			}
			out, err := png.Decode(rec.Body)
			require.NoError(t, err)
			assert.Equal(t, 2, out.Bounds().Dx())
		})
	}
}

func TestServer_Remove_URLDisabled(t *testing.T) {
	t.Parallel()

	remover := &fakeRemover{}
	body, contentType := multipartBody(t, map[string]string{"url": "http://169.254.169.254/latest/meta-data"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/remove", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newTestServer(t, remover, nil).Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "url fetching is disabled")
	assert.Zero(t, remover.calls)
}

func TestServer_Run_Shutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newTestServer(t, rembg.NewNopRemover(), nil).Run(ctx, "127.0.0.1:0")
	}()
	cancel()

	assert.NoError(t, <-done)
}
