package crawlers

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Pacer 控制与页面交互的节奏: 固定最小间隔 + 均匀随机抖动
// 各参数为0时对应的等待被跳过
type Pacer struct {
	limiter *rate.Limiter
	min     time.Duration
	max     time.Duration
}

// NewPacer 创建节奏控制器
// interval 为两次 Wait 之间的最小间隔, [min, max] 为额外的随机等待
func NewPacer(interval, min, max time.Duration) *Pacer {
	if max < min {
		min, max = max, min
	}
	p := &Pacer{min: min, max: max}
	if interval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return p
}

// Wait 阻塞直到允许下一次交互, ctx 取消时立即返回
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return sleep(ctx, p.Jitter())
}

// Jitter 返回 [min, max] 内的随机时长
func (p *Pacer) Jitter() time.Duration {
	if p.max <= 0 {
		return 0
	}
	if p.max == p.min {
		return p.min
	}
	return p.min + time.Duration(rand.Int63n(int64(p.max-p.min+1)))
}
