package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/pool"
)

// EventWatcher 轮询账本事件并分发给订阅者。
//
// 进程内的提交会直接触发 EventSink，而同一账本可能被多个
// 节点写入（如 Postgres 后端多副本部署），轮询保证本节点也
// 能看到其他节点追加的事件。投递语义为至少一次，消费方按
// 事件序号去重。
type EventWatcher struct {
	ledger   *LedgerService
	workers  *pool.WorkerPool
	logger   *zap.Logger
	interval time.Duration
	batch    int

	lastSeq uint64
	handler func(event *domain.Event)
}

// NewEventWatcher 创建事件轮询器。
//
// handler 在协程池中执行，调用方无需考虑阻塞。
func NewEventWatcher(ledger *LedgerService, workers *pool.WorkerPool,
	interval time.Duration, logger *zap.Logger, handler func(event *domain.Event)) *EventWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &EventWatcher{
		ledger:   ledger,
		workers:  workers,
		logger:   logger,
		interval: interval,
		batch:    256,
		handler:  handler,
	}
}

// Run 启动轮询循环，直到 ctx 取消。
func (w *EventWatcher) Run(ctx context.Context) error {
	// 从当前最新序号开始，只推送启动之后的事件
	seq, err := w.ledger.LatestEventSeq()
	if err != nil {
		return err
	}
	w.lastSeq = seq

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("事件轮询器已启动",
		zap.Uint64("start_seq", w.lastSeq),
		zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("事件轮询器已停止", zap.Uint64("last_seq", w.lastSeq))
			return nil
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *EventWatcher) poll() {
	for {
		events, err := w.ledger.Events(w.lastSeq, w.batch)
		if err != nil {
			w.logger.Warn("读取账本事件失败", zap.Error(err))
			return
		}
		if len(events) == 0 {
			return
		}

		for i := range events {
			event := events[i]
			w.workers.Submit(func() {
				w.handler(&event)
			})
			w.lastSeq = event.Seq
		}

		// 不足一批说明已追上最新事件
		if len(events) < w.batch {
			return
		}
	}
}
