// Package retry 为存储调用提供有界重试：指数退避加随机抖动，
// 只对瞬时错误重试，并带有单次超时和整体截止时间。
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted 重试次数或整体时限耗尽。
var ErrExhausted = errors.New("retry attempts exhausted")

// ExhaustedError 携带尝试次数和最后一次错误。
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrExhausted) 成立。
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Policy 重试策略。
type Policy struct {
	MaxAttempts    int           // 总尝试次数（含首次）
	BaseDelay      time.Duration // 首次重试前的等待
	MaxDelay       time.Duration // 单次等待上限
	Multiplier     float64
	Jitter         float64       // 0.0 - 1.0
	AttemptTimeout time.Duration // 单次尝试超时，0 表示不限制
	Deadline       time.Duration // 整体截止时间，0 表示不限制

	// Retryable 判断错误是否值得重试，为 nil 时不重试任何错误
	Retryable func(error) bool

	// OnRetry 每次决定重试前调用，可用于记录指标
	OnRetry func(attempt int, err error)
}

// DefaultPolicy 返回默认策略：最多 3 次尝试。
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
		AttemptTimeout: 2 * time.Second,
		Deadline:       5 * time.Second,
		Retryable:      retryable,
	}
}

// Delay 计算第 attempt 次重试（从 0 开始）前的等待时间。
func (p Policy) Delay(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		jitterAmount := delay * p.Jitter
		delay = delay - jitterAmount + (rand.Float64() * 2 * jitterAmount)
	}

	return time.Duration(delay)
}

// Do 按策略执行 op。
//
// 非瞬时错误立即原样返回；瞬时错误在次数或时限耗尽后返回 *ExhaustedError。
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if p.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		lastErr = p.attempt(ctx, op)
		if lastErr == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(lastErr) {
			return lastErr
		}
		if attempts >= maxAttempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempts, lastErr)
		}
		if err := wait(ctx, p.Delay(attempts-1)); err != nil {
			break
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func (p Policy) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.AttemptTimeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return op(attemptCtx)
}

func wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do 使用给定策略执行 op。
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	return p.Do(ctx, op)
}
