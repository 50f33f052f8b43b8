package genimage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"imagestudio-server-go/src/configs"
	"imagestudio-server-go/src/core/utils"
)

func newTestLogger(t *testing.T) *utils.Logger {
	t.Helper()
	config := &configs.Config{}
	config.Log.LogDir = t.TempDir()
	config.Log.LogFile = "test.log"
	config.Log.LogLevel = "error"

	logger, err := utils.NewLogger(config)
	if err != nil {
		t.Fatalf("创建测试logger失败: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{
			name:      "nil错误",
			err:       nil,
			transient: false,
		},
		{
			name:      "结构化429",
			err:       &APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "rate limited"},
			transient: true,
		},
		{
			name:      "结构化503",
			err:       &APIError{StatusCode: 503, Message: "overloaded"},
			transient: true,
		},
		{
			name:      "结构化500不重试",
			err:       &APIError{StatusCode: 500, Message: "internal"},
			transient: false,
		},
		{
			name:      "包装过的结构化429",
			err:       fmt.Errorf("调用失败: %w", &APIError{StatusCode: 429, Message: "x"}),
			transient: true,
		},
		{
			name:      "消息包含quota",
			err:       errors.New("exceeded quota for this project"),
			transient: true,
		},
		{
			name:      "消息包含RESOURCE_EXHAUSTED",
			err:       errors.New("status RESOURCE_EXHAUSTED"),
			transient: true,
		},
		{
			name:      "消息包含429",
			err:       errors.New("server returned 429"),
			transient: true,
		},
		{
			name:      "429作为长数字的子串同样命中",
			err:       errors.New("request id 14290 failed"),
			transient: true,
		},
		{
			name:      "普通网络错误不重试",
			err:       errors.New("connection refused"),
			transient: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientError(tt.err); got != tt.transient {
				t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.transient)
			}
		})
	}
}

func TestRetryDelay(t *testing.T) {
	for k := 1; k <= 4; k++ {
		base := baseRetryDelay * time.Duration(1<<(k-1))
		for i := 0; i < 20; i++ {
			delay := retryDelay(k)
			if delay < base || delay >= base+maxRetryJitter {
				t.Errorf("retryDelay(%d) = %v，应落在 [%v, %v) 区间", k, delay, base, base+maxRetryJitter)
			}
		}
	}
}

func TestWithRetry_SuccessNoRetry(t *testing.T) {
	logger := newTestLogger(t)

	attempts := 0
	result, err := withRetry(context.Background(), logger, 3, func() (string, error) {
		attempts++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("期望成功，得到错误: %v", err)
	}
	if result != "ok" {
		t.Errorf("结果 = %q, want %q", result, "ok")
	}
	if attempts != 1 {
		t.Errorf("调用次数 = %d, want 1", attempts)
	}
}

func TestWithRetry_TerminalErrorNoRetry(t *testing.T) {
	logger := newTestLogger(t)

	terminal := errors.New("invalid argument")
	attempts := 0
	_, err := withRetry(context.Background(), logger, 5, func() (string, error) {
		attempts++
		return "", terminal
	})
	if !errors.Is(err, terminal) {
		t.Errorf("终态错误应原样返回，得到: %v", err)
	}
	if attempts != 1 {
		t.Errorf("终态错误不应重试，调用次数 = %d, want 1", attempts)
	}
}

func TestWithRetry_TransientThenSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过含退避等待的慢测试")
	}
	logger := newTestLogger(t)

	attempts := 0
	result, err := withRetry(context.Background(), logger, 2, func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", &APIError{StatusCode: 429, Message: "rate limited"}
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("期望重试后成功，得到错误: %v", err)
	}
	if result != "recovered" {
		t.Errorf("结果 = %q, want %q", result, "recovered")
	}
	if attempts != 2 {
		t.Errorf("调用次数 = %d, want 2", attempts)
	}
}

func TestWithRetry_ExhaustedReturnsQuotaError(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过含退避等待的慢测试")
	}
	logger := newTestLogger(t)

	attempts := 0
	_, err := withRetry(context.Background(), logger, 1, func() (string, error) {
		attempts++
		return "", &APIError{StatusCode: 429, Message: "rate limited"}
	})
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Errorf("耗尽后应返回ErrQuotaExhausted，得到: %v", err)
	}
	// 首次调用 + 1次重试
	if attempts != 2 {
		t.Errorf("调用次数 = %d, want 2", attempts)
	}
}

func TestWithRetry_ContextCancelAbortsBackoff(t *testing.T) {
	logger := newTestLogger(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := withRetry(ctx, logger, 5, func() (string, error) {
		return "", &APIError{StatusCode: 503, Message: "overloaded"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("取消后应返回context.Canceled，得到: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("取消后不应继续等待退避，耗时 %v", elapsed)
	}
}

func TestWithRetry_ZeroMaxRetriesUsesDefault(t *testing.T) {
	logger := newTestLogger(t)

	terminal := errors.New("bad request")
	attempts := 0
	_, err := withRetry(context.Background(), logger, 0, func() (int, error) {
		attempts++
		return 0, terminal
	})
	if !errors.Is(err, terminal) {
		t.Errorf("得到错误: %v", err)
	}
	if attempts != 1 {
		t.Errorf("调用次数 = %d, want 1", attempts)
	}
}
