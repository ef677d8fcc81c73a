package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	apperrors "fixit-rag-api/pkg/errors"
	"fixit-rag-api/pkg/logger"
)

// RetryPolicy 调用方侧重试策略（仅对 ServiceUnavailable 生效）
type RetryPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	MaxTries   uint
}

// NoRetry 只执行一次
var NoRetry = RetryPolicy{MaxTries: 1}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	return b
}

// withRetry 执行 op，ServiceUnavailable 按退避重试，其他错误立即返回
func withRetry[T any](ctx context.Context, p RetryPolicy, op string, fn func() (T, error)) (T, error) {
	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !apperrors.IsCode(err, apperrors.CodeServiceUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn(ctx, "vector store unavailable, retrying", "operation", op, "next", next.String(), "error", err.Error())
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return res, err
}
