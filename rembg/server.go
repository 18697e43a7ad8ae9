package rembg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	nhttp "github.com/chaos-io/nobg/util/http"
)

const (
	DefaultServerURL = "http://127.0.0.1:7000"
	removePath       = "/api/remove"

	// CPU 上跑 isnet 一张大图可能要几十秒
	defaultServerTimeout = 5 * time.Minute
)

// ServerRemover 调用 `rembg s` 启动的 HTTP 服务
type ServerRemover struct {
	baseURL string
	opts    Options
	timeout time.Duration
	cli     nhttp.IClient
}

func NewServerRemover(baseURL string, opts Options, timeout time.Duration) *ServerRemover {
	if baseURL == "" {
		baseURL = DefaultServerURL
	}
	if timeout <= 0 {
		timeout = defaultServerTimeout
	}
	return &ServerRemover{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		timeout: timeout,
		cli:     nhttp.NewHTTPClientWithTimeout(timeout),
	}
}

/*
	curl -X POST "$BASE_URL/api/remove" \
	  -F "file=@my_image.png" \
	  -F "model=u2net" \
	  -F "a=true" -F "af=240" -F "ab=10" -F "ae=10" \
	  -F "om=false" -o my_image_no_bg.png
*/
func (s *ServerRemover) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	body, contentType, err := s.form(data)
	if err != nil {
		return nil, err
	}

	var result []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: s.baseURL + removePath,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": contentType},
		Body:       body,
		Response:   &result,
		Timeout:    s.timeout,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	slog.Debug("get the response", "model", s.opts.Model.Name, "bytes", len(result))

	return decodeImage(result)
}

func (s *ServerRemover) form(data []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	// file 文件字段
	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}

	// 其他字段
	for _, kv := range s.fields() {
		if err := writer.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", kv[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

func (s *ServerRemover) fields() [][2]string {
	fields := [][2]string{
		{"model", s.opts.Model.Name},
		{"a", strconv.FormatBool(s.opts.AlphaMatting)},
		{"om", strconv.FormatBool(s.opts.MaskOnly)},
	}
	if s.opts.AlphaMatting {
		fields = append(fields,
			[2]string{"af", strconv.Itoa(s.opts.Matting.ForegroundThreshold)},
			[2]string{"ab", strconv.Itoa(s.opts.Matting.BackgroundThreshold)},
			[2]string{"ae", strconv.Itoa(s.opts.Matting.ErodeSize)},
		)
	}
	return fields
}
