package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/pool"
)

type eventCollector struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (c *eventCollector) handle(event *domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *eventCollector) seqs() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	seqs := make([]uint64, len(c.events))
	for i, ev := range c.events {
		seqs[i] = ev.Seq
	}
	return seqs
}

func TestEventWatcher_PushesNewEvents(t *testing.T) {
	ledger := newTestLedger(t)

	workers := pool.NewWorkerPool(2, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	workers.Start(ctx)

	collector := &eventCollector{}
	watcher := NewEventWatcher(ledger, workers, 10*time.Millisecond, zap.NewNop(), collector.handle)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	// 等轮询器启动后再提交，保证事件落在观察窗口内
	time.Sleep(30 * time.Millisecond)

	_, err := ledger.LogSend(alice, bob, "ptr-1")
	require.NoError(t, err)
	require.NoError(t, ledger.RegisterPublicKey(bob, "key"))

	assert.Eventually(t, func() bool {
		return len(collector.seqs()) == 2
	}, time.Second, 10*time.Millisecond)

	// 两个 worker 并发投递，只保证集合一致
	assert.ElementsMatch(t, []uint64{1, 2}, collector.seqs())

	cancel()
	<-done
}

func TestEventWatcher_SkipsHistoricalEvents(t *testing.T) {
	ledger := newTestLedger(t)

	// 启动前已有的事件不重放
	_, err := ledger.LogSend(alice, bob, "old")
	require.NoError(t, err)

	workers := pool.NewWorkerPool(2, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	workers.Start(ctx)

	collector := &eventCollector{}
	watcher := NewEventWatcher(ledger, workers, 10*time.Millisecond, zap.NewNop(), collector.handle)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)

	_, err = ledger.LogSend(alice, bob, "new")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(collector.seqs()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []uint64{2}, collector.seqs())

	cancel()
	<-done
}

func TestNewEventWatcher_DefaultInterval(t *testing.T) {
	ledger := newTestLedger(t)
	watcher := NewEventWatcher(ledger, pool.NewWorkerPool(1, 1), 0, zap.NewNop(), func(*domain.Event) {})

	assert.Equal(t, 2*time.Second, watcher.interval)
}
