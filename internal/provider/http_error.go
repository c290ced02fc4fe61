package provider

import (
	"fmt"
	"net/http"
	"strings"
)

// HTTPStatusError 表示服务端返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	RetryAfter string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	ra := strings.TrimSpace(e.RetryAfter)
	if ra == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d retry-after=%s", e.StatusCode, ra)
}

// Kind 把状态码映射为错误分类：429/503 => rate_limited，404 => not_found，其余 => server。
func (e *HTTPStatusError) Kind() Kind {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return KindRateLimited
	case http.StatusNotFound:
		return KindNotFound
	default:
		return KindServer
	}
}

// ServiceError 表示服务端在 2xx 响应里返回了错误文档（例如 AniDB 的 <error> 根元素）。
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return "service error"
	}
	return "service error: " + strings.TrimSpace(e.Message)
}
