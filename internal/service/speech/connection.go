package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultDialAttempts = 3
	dialRetryBase       = 200 * time.Millisecond
)

// dialWithRetry 带重试的连接建立，只对网络错误和 429/5xx 握手重试
func dialWithRetry(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header, attempts int) (*websocket.Conn, *http.Response, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, resp, nil
		}
		lastErr = err

		// 如果是上下文取消，直接返回
		if ctx.Err() != nil {
			return nil, resp, ctx.Err()
		}
		if !isRetryableDial(resp, err) || i == attempts-1 {
			return nil, resp, err
		}

		retryDelay := time.Duration(i+1) * dialRetryBase
		log.Printf("[tts] dial attempt %d/%d failed, retrying in %s: %v", i+1, attempts, retryDelay, err)
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return nil, nil, fmt.Errorf("failed to connect after %d attempts: %w", attempts, lastErr)
}

// isRetryableDial 判断握手失败是否值得重试
func isRetryableDial(resp *http.Response, err error) bool {
	if resp != nil {
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, websocket.ErrBadHandshake) {
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
