package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	client := NewHTTPClient()
	httpClient, ok := client.(*HTTPClient)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, httpClient.client.Timeout)

	client = NewHTTPClientWithTimeout(5 * time.Minute)
	httpClient, ok = client.(*HTTPClient)
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, httpClient.client.Timeout)
}

func TestHTTPClient_DoHTTPRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		requestParam *RequestParam
		handler      http.HandlerFunc
		wantErr      bool
		wantErrMsg   string
	}{
		{
			name:         "成功的GET请求",
			requestParam: &RequestParam{Method: http.MethodGet},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				_, _ = w.Write([]byte(`{"message": "success"}`))
			},
		},
		{
			name: "POST请求带JSON body",
			requestParam: &RequestParam{
				Method: http.MethodPost,
				Body:   map[string]interface{}{"model": "u2net"},
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				var data map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&data))
				assert.Equal(t, "u2net", data["model"])
			},
		},
		{
			name: "POST请求带io.Reader body和自定义header",
			requestParam: &RequestParam{
				Method: http.MethodPost,
				Body:   strings.NewReader(`{"reader": "body"}`),
				Header: map[string]string{"Content-Type": "application/json"},
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				assert.Equal(t, `{"reader": "body"}`, string(body))
			},
		},
		{
			name:         "io.Reader默认为text/plain",
			requestParam: &RequestParam{Method: http.MethodPost, Body: strings.NewReader("test bytes data")},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
			},
		},
		{
			name:         "服务器返回错误状态码",
			requestParam: &RequestParam{Method: http.MethodGet},
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error": "server error"}`))
			},
			wantErr:    true,
			wantErrMsg: "HTTP request failed with status 500",
		},
		{
			name:         "请求超时",
			requestParam: &RequestParam{Method: http.MethodGet, Timeout: 100 * time.Millisecond},
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			},
			wantErr:    true,
			wantErrMsg: "context deadline exceeded",
		},
		{
			name:       "请求参数为nil",
			wantErr:    true,
			wantErrMsg: "request param is nil",
		},
		{
			name:         "无效的URL",
			requestParam: &RequestParam{Method: http.MethodGet, RequestURI: "://invalid-url"},
			wantErr:      true,
			wantErrMsg:   "missing protocol scheme",
		},
		{
			name:         "JSON序列化失败",
			requestParam: &RequestParam{Method: http.MethodPost, Body: make(chan int)},
			wantErr:      true,
			wantErrMsg:   "json: unsupported type: chan int",
		},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := tt.handler
			if handler == nil {
				handler = func(w http.ResponseWriter, r *http.Request) {}
			}
			server := httptest.NewServer(handler)
			defer server.Close()

			if tt.requestParam != nil && tt.requestParam.RequestURI == "" {
				tt.requestParam.RequestURI = server.URL
			}

			err := NewHTTPClient().DoHTTPRequest(context.Background(), tt.requestParam)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPClient_DoHTTPRequest_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := NewHTTPClient().DoHTTPRequest(ctx, &RequestParam{Method: http.MethodGet, RequestURI: server.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestHTTPClient_DoHTTPRequest_RawResponse(t *testing.T) {
	t.Parallel()

	png := []byte("\x89PNG\r\n\x1a\nfake")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("payload"), body)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer server.Close()

	var got []byte
	err := NewHTTPClient().DoHTTPRequest(context.Background(), &RequestParam{
		Method:     http.MethodPost,
		RequestURI: server.URL,
		Body:       []byte("payload"),
		Response:   &got,
	})
	require.NoError(t, err)
	assert.Equal(t, png, got)
}

func TestHTTPClient_DoHTTPRequest_JSONResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name": "my_image1.png", "subfolder": "", "type": "input"}`))
	}))
	defer server.Close()

	var resp struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	err := NewHTTPClient().DoHTTPRequest(context.Background(), &RequestParam{
		Method:     http.MethodGet,
		RequestURI: server.URL,
		Response:   &resp,
	})
	require.NoError(t, err)
	assert.Equal(t, "my_image1.png", resp.Name)
	assert.Equal(t, "input", resp.Type)
}

func TestHTTPClient_DoHTTPRequest_ErrorStatusCodes(t *testing.T) {
	t.Parallel()

	for _, statusCode := range []int{400, 404, 413, 500, 503} {
		statusCode := statusCode
		t.Run(http.StatusText(statusCode), func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(statusCode)
				_, _ = w.Write([]byte("Error message"))
			}))
			defer server.Close()

			err := NewHTTPClient().DoHTTPRequest(context.Background(), &RequestParam{
				Method:     http.MethodGet,
				RequestURI: server.URL,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "HTTP request failed with status")
			assert.Contains(t, err.Error(), "Error message")
		})
	}
}
