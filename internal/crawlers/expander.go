package crawlers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Expander 展开被截断的评论正文
// 必须在每次解析快照之前调用, 否则正文只有截断后的部分
type Expander struct {
	locator string
	pause   time.Duration // 两次点击之间的等待
	settle  time.Duration // 全部点击后等待内容展开
}

// NewExpander 创建展开器
func NewExpander(locator string, pause, settle time.Duration) *Expander {
	return &Expander{locator: locator, pause: pause, settle: settle}
}

// Expand 用脚本点击当前页面上所有"展开"按钮, 返回点击数
// 点击失败只记录日志, 不影响后续解析
func (e *Expander) Expand(ctx context.Context, session Session) int {
	clicked, err := session.ClickAllMatching(ctx, e.locator, e.pause)
	if err != nil {
		log.Debug().Err(err).Int("clicked", clicked).Msg("展开评论正文未全部完成")
	}
	if clicked > 0 {
		_ = sleep(ctx, e.settle)
	}
	log.Debug().Int("clicked", clicked).Msg("展开评论正文")
	return clicked
}
