package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/shopspring/decimal"
)

func NewTrue() *bool {
	b := true
	return &b
}

func DereferencePtr[T any](ptr *T) T {
	var zero T
	if ptr == nil {
		return zero
	}
	return *ptr
}

// ConvertStringToDecimal parses a decimal string, rejecting blanks.
func ConvertStringToDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}

	return dec, nil
}

// StockLock serializes heavyweight stock mutations for a branch via redis.
// Row-level SELECT ... FOR UPDATE remains the correctness mechanism; this
// lock only bounds lock-wait pile-ups when many writers target one branch.
// Degrades to a no-op when redis is not configured (single-node deployments).
func StockLock(ctx context.Context, branchId int, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}

	lockKey := fmt.Sprintf("stockLock:%d", branchId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	})
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "could not obtain stock lock for branch", branchId, err)
		return nil, ErrorLockNotObtained
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "error obtaining stock lock for branch", branchId, err)
		return nil, err
	}

	release := func() {
		_ = lock.Release(context.Background())
	}
	return release, nil
}
