package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// Call 在 goroutine 中执行阻塞调用，受 ctx 和 timeout 约束
//
// 超时或 ctx 结束时立即返回，阻塞调用在后台自行结束，结果被丢弃。
func Call[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		v, err := fn()
		resultCh <- result{v: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case res := <-resultCh:
		return res.v, res.err
	case <-timer.C:
		return zero, fmt.Errorf("timeout after %v", timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
