package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/HatmanStack/canvas-demo/models"
)

// 账本常量。窗口固定 1200s，premium 权重 2、standard 权重 1，
// 所有层级共享同一个加权预算（而不是按层级各设绝对上限）。
const (
	LedgerKey = "rate-limit/jsonData.json"
	Window    = 1200 * time.Second

	weightStandard = 1
	weightPremium  = 2

	// WATCH 冲突时的重试上限
	maxTxRetries = 5
)

// ledgerData 持久化布局：{"premium":[ts...],"standard":[ts...]}
type ledgerData struct {
	Premium  []int64 `json:"premium"`
	Standard []int64 `json:"standard"`
}

// Ledger 跨进程共享的滑动窗口配额账本。
// 读-改-写通过 WATCH/MULTI 乐观事务执行：并发写入者中只有一个提交成功，
// 失败方重读后重试，放行判定本身与单写入者语义一致。
type Ledger struct {
	client *redis.Client
	limit  int
	now    func() time.Time
}

func NewLedger(client *redis.Client, limit int) *Ledger {
	return &Ledger{
		client: client,
		limit:  limit,
		now:    time.Now,
	}
}

// Admit 按层级申请配额。放行时把当前时间追加进账本并写回；
// 超出预算返回 models.ErrRateLimitExceeded。
// 账本缺失视为两个层级均为空并无条件写回。
func (l *Ledger) Admit(ctx context.Context, tier string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := l.client.Watch(ctx, func(tx *redis.Tx) error {
			var data ledgerData
			b, err := tx.Get(ctx, LedgerKey).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
				// 初始化空账本
			case err != nil:
				return fmt.Errorf("failed to check rate limit: %w", err)
			default:
				if err := json.Unmarshal(b, &data); err != nil {
					return fmt.Errorf("failed to check rate limit: %w", err)
				}
			}

			updated, err := admit(data, tier, l.now().Unix(), l.limit)
			if err != nil {
				return err
			}

			buf, err := json.Marshal(updated)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, LedgerKey, buf, 0)
				return nil
			})
			return err
		}, LedgerKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to check rate limit: too much contention")
}

// admit 纯判定：裁剪窗口外条目、计算加权总数、决定放行并追加当前时间。
// 放行条件：加权总数 + 本次权重 <= limit（恰好打满预算仍放行）。
func admit(data ledgerData, tier string, now int64, limit int) (ledgerData, error) {
	cutoff := now - int64(Window/time.Second)
	data.Premium = prune(data.Premium, cutoff)
	data.Standard = prune(data.Standard, cutoff)

	total := len(data.Premium)*weightPremium + len(data.Standard)*weightStandard

	weight := weightStandard
	if tier == models.QualityPremium {
		weight = weightPremium
	}
	if total+weight > limit {
		return data, models.ErrRateLimitExceeded
	}

	if weight == weightPremium {
		data.Premium = append(data.Premium, now)
	} else {
		data.Standard = append(data.Standard, now)
	}
	return data, nil
}

// prune 只保留窗口内（严格晚于 cutoff）的条目
func prune(entries []int64, cutoff int64) []int64 {
	kept := entries[:0]
	for _, t := range entries {
		if t > cutoff {
			kept = append(kept, t)
		}
	}
	return kept
}
