package http

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 一次 HTTP 请求的参数
//
// Body 支持 io.Reader、[]byte 以及任意可 JSON 序列化的值
// Response 为 *[]byte 时保存原始响应体（例如 PNG），否则按 JSON 反序列化
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
}
