package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"github.com/bsm/redislock"
)

// ErrRunInProgress means another reconciliation run holds the lock for this
// report kind.
var ErrRunInProgress = errors.New("reconciliation run already in progress")

// WithReconciliationLock serializes reconciliation runs per report kind across
// instances. Two overlapping runs could double-apply an auto-correction on the
// same discrepancy; the engine itself assumes the caller provides this
// exclusion, and every entrypoint in this repo goes through here.
func WithReconciliationLock(ctx context.Context, locker *redislock.Client, kind models.ReportKind, fn func(ctx context.Context) error) error {
	if locker == nil {
		return errors.New("redis lock client not initialized")
	}
	lockKey := fmt.Sprintf("reconciliation:%s", kind)
	lock, err := locker.Obtain(ctx, lockKey, 10*time.Minute, nil)
	if err == redislock.ErrNotObtained {
		return ErrRunInProgress
	} else if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	return fn(ctx)
}
