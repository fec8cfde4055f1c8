package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricFactory 指标工厂，统一创建 remoting / queue / collect 指标
type MetricFactory struct {
	reg Registers
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}

// register 注册指标；已存在同名同标签的指标时返回已注册的实例
func register[T prometheus.Collector](reg Registers, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
