package genimage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"imagestudio-server-go/src/core/utils"
)

const (
	// 首次请求之外最多追加的重试次数
	defaultMaxRetries = 5
	// 第k次重试前的基础等待时间为 baseRetryDelay * 2^(k-1)
	baseRetryDelay = 2 * time.Second
	// 叠加的随机抖动上限，避免并发请求同步重试
	maxRetryJitter = time.Second
)

// ErrQuotaExhausted 限流重试次数耗尽后返回的用户可见错误
var ErrQuotaExhausted = errors.New("请求过于频繁，生成配额暂时耗尽，请稍候再试")

// APIError 远端生成API返回的结构化错误
type APIError struct {
	StatusCode int    // HTTP状态码
	Status     string // API状态枚举，如 RESOURCE_EXHAUSTED
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("API错误 %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("API错误 %d: %s", e.StatusCode, e.Message)
}

// isTransientError 判断错误是否为可重试的瞬时错误
// 优先看结构化状态码，取不到再退化为消息子串匹配
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode == 503 {
			return true
		}
	}

	// 注意："429"的子串匹配偏宽，与错误无关的数字串也会命中，
	// 维持既有行为不收窄
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

// retryDelay 第k次重试（k从1开始）前的等待时间
func retryDelay(k int) time.Duration {
	backoff := baseRetryDelay * time.Duration(1<<(k-1))
	jitter := time.Duration(rand.Int63n(int64(maxRetryJitter)))
	return backoff + jitter
}

// withRetry 带限流退避地执行一次远端调用
// 终态错误（非限流）不重试，原样返回；瞬时错误重试耗尽后返回ErrQuotaExhausted
func withRetry[T any](ctx context.Context, logger *utils.Logger, maxRetries int, call func() (T, error)) (T, error) {
	var zero T
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			logger.Warn(fmt.Sprintf("远端调用被限流，%v后进行第%d次重试", delay.Round(time.Millisecond), attempt), map[string]interface{}{
				"error": lastErr.Error(),
			})

			// 调用方放弃等待时不再继续重试
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		result, err := call()
		if err == nil {
			return result, nil
		}

		if !isTransientError(err) {
			// 终态错误立即透传，不消耗重试次数
			return zero, err
		}
		lastErr = err
	}

	logger.Error("限流重试次数耗尽", map[string]interface{}{
		"max_retries": maxRetries,
		"last_error":  lastErr.Error(),
	})
	return zero, ErrQuotaExhausted
}
