package portmap

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-natmap/internal/core/portmap/pcp"
	pkgif "github.com/dep2p/go-natmap/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 配置（可选）
	Config *Config `optional:"true"`

	// EventBus 事件总线（可选）
	EventBus pkgif.EventBus `optional:"true"`

	// Registerer 指标注册器（可选，未提供时不记录 PCP 指标）
	Registerer prometheus.Registerer `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Service *Service
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideService 提供门面服务
func ProvideService(input ModuleInput) (ModuleOutput, error) {
	cfg := DefaultConfig()
	if input.Config != nil {
		cfg = *input.Config
	}

	var metrics *pcp.Metrics
	if input.Registerer != nil {
		metrics = pcp.NewMetrics(input.Registerer)
	}

	svc, err := NewService(cfg, input.EventBus, metrics)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Service: svc}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module(Name,
		fx.Provide(ProvideService),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In
	LC      fx.Lifecycle
	Service *Service
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("端口映射模块停止")
			return input.Service.Close(ctx)
		},
	})
}

// ============================================================================
//                              模块元信息
// ============================================================================

const (
	// Name 模块名称
	Name = "portmap"
	// Description 模块描述
	Description = "端口映射模块，按网关提供 PCP、NAT-PMP 和 UPnP 引擎"
)
