package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

// ============================================================================
// 基础功能测试
// ============================================================================

func TestBus_EmitAndReceive(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(types.EvtGatewayError))
	require.NoError(t, err)
	defer sub.Close()

	em, err := bus.Emitter(new(types.EvtGatewayError))
	require.NoError(t, err)
	defer em.Close()

	cause := errors.New("bind failed")
	require.NoError(t, em.Emit(types.EvtGatewayError{Gateway: "192.168.1.1", Err: cause}))

	select {
	case evt := <-sub.Out():
		e := evt.(types.EvtGatewayError)
		assert.Equal(t, "192.168.1.1", e.Gateway)
		assert.ErrorIs(t, e.Err, cause)
	case <-time.After(time.Second):
		t.Fatal("等待事件超时")
	}
}

func TestBus_InvalidTypes(t *testing.T) {
	bus := NewBus()

	_, err := bus.Subscribe(nil)
	assert.ErrorIs(t, err, ErrInvalidEventType)

	_, err = bus.Subscribe(types.EvtGatewayError{})
	assert.ErrorIs(t, err, ErrNonPointerType)

	em, err := bus.Emitter(new(types.EvtMappingCreated))
	require.NoError(t, err)
	assert.ErrorIs(t, em.Emit(types.EvtGatewayError{}), ErrInvalidEventType)
	assert.ErrorIs(t, em.Emit(nil), ErrInvalidEventType)
}

func TestBus_TypeIsolation(t *testing.T) {
	bus := NewBus()

	created, _ := bus.Subscribe(new(types.EvtMappingCreated))
	defer created.Close()
	deleted, _ := bus.Subscribe(new(types.EvtMappingDeleted))
	defer deleted.Close()

	em, _ := bus.Emitter(new(types.EvtMappingDeleted))
	require.NoError(t, em.Emit(types.EvtMappingDeleted{LocalPort: 4001}))

	select {
	case <-created.Out():
		t.Fatal("不应收到其他类型的事件")
	case evt := <-deleted.Out():
		assert.Equal(t, 4001, evt.(types.EvtMappingDeleted).LocalPort)
	case <-time.After(time.Second):
		t.Fatal("等待事件超时")
	}
}

// ============================================================================
// Subscription / Emitter 生命周期测试
// ============================================================================

func TestSubscription_Close(t *testing.T) {
	bus := NewBus()
	sub, _ := bus.Subscribe(new(types.EvtGatewayError))
	assert.Equal(t, 1, bus.SubscriberCount(new(types.EvtGatewayError)))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, bus.SubscriberCount(new(types.EvtGatewayError)))

	_, ok := <-sub.Out()
	assert.False(t, ok, "关闭后通道应被关闭")

	em, _ := bus.Emitter(new(types.EvtGatewayError))
	assert.NoError(t, em.Emit(types.EvtGatewayError{}))
}

func TestEmitter_Closed(t *testing.T) {
	bus := NewBus()
	em, _ := bus.Emitter(new(types.EvtGatewayError))
	require.NoError(t, em.Close())
	assert.ErrorIs(t, em.Emit(types.EvtGatewayError{}), ErrEmitterClosed)
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	sub, _ := bus.Subscribe(new(types.EvtMappingRefreshed), pkgif.BufSize(1))
	defer sub.Close()

	em, _ := bus.Emitter(new(types.EvtMappingRefreshed))
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = em.Emit(types.EvtMappingRefreshed{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("发射方被阻塞")
	}
	assert.Len(t, sub.Out(), 1)
}

func TestBus_ConcurrentSubscribeEmit(t *testing.T) {
	bus := NewBus()
	em, _ := bus.Emitter(new(types.EvtMappingCreated))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub, err := bus.Subscribe(new(types.EvtMappingCreated))
			if err == nil {
				_ = sub.Close()
			}
		}()
		go func() {
			defer wg.Done()
			_ = em.Emit(types.EvtMappingCreated{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.SubscriberCount(new(types.EvtMappingCreated)))
}

// ============================================================================
// Fx 模块测试
// ============================================================================

func TestModule_Load(t *testing.T) {
	var loaded pkgif.EventBus

	app := fx.New(
		Module(),
		fx.NopLogger,
		fx.Invoke(func(bus pkgif.EventBus) {
			loaded = bus
		}),
	)

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	assert.NotNil(t, loaded)
	require.NoError(t, app.Stop(ctx))
}
