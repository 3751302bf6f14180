// Package imagefetch 负责抓取远端图片并编码为可内联传输的形式。
package imagefetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gemini-chat-go/internal/config"
	"gemini-chat-go/internal/model"
)

// ErrFetch 表示图片抓取失败（超时、非 2xx 或响应体不可读）。
// 该错误对整轮对话而言是非致命的，调用方应降级为纯文本继续。
var ErrFetch = errors.New("image fetch failed")

// 无法从响应头判断类型时使用的兜底 MIME 类型。
const defaultMimeType = "image/jpeg"

// Fetcher 定义了图片抓取器的接口。
type Fetcher interface {
	// Fetch 单次 GET 抓取 url 指向的图片，base64 编码后返回；不做重试。
	Fetch(ctx context.Context, url string) (*model.InlineData, error)
}

type httpFetcher struct {
	client *http.Client
}

// NewFetcher 根据配置创建一个带超时的图片抓取器。
func NewFetcher(cfg config.ImageConfig) Fetcher {
	timeout := time.Duration(cfg.FetchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *httpFetcher) Fetch(ctx context.Context, url string) (*model.InlineData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", ErrFetch, url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: non-2xx status %s for %q", ErrFetch, resp.Status, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrFetch, err)
	}

	mimeType := defaultMimeType
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
		mimeType = ct
	}

	return &model.InlineData{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}
