package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWorkerPool_ExecutesTasks(t *testing.T) {
	p := NewWorkerPool(4, 16, zap.NewNop())
	p.Start(context.Background())

	var executed int64
	for i := 0; i < 10; i++ {
		p.Submit(func() {
			atomic.AddInt64(&executed, 1)
		})
	}
	p.Stop()

	assert.Equal(t, int64(10), atomic.LoadInt64(&executed))
}

func TestWorkerPool_RecoversFromPanic(t *testing.T) {
	p := NewWorkerPool(1, 4, zap.NewNop())
	p.Start(context.Background())

	var executed int64
	p.Submit(func() {
		panic("boom")
	})
	p.Submit(func() {
		atomic.AddInt64(&executed, 1)
	})
	p.Stop()

	// panic 后池子仍能继续处理任务
	assert.Equal(t, int64(1), atomic.LoadInt64(&executed))
}

func TestWorkerPool_TrySubmitFullQueue(t *testing.T) {
	p := NewWorkerPool(1, 1, zap.NewNop())
	// 未启动 worker，队列满后 TrySubmit 应立即失败

	assert.True(t, p.TrySubmit(func() {}))
	assert.False(t, p.TrySubmit(func() {}))

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
}
