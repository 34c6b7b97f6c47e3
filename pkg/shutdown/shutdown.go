// Package shutdown 优雅关闭管理器：循环模式下收到信号后，
// 先停下周期循环，再把数据库等资源按注册顺序关干净。
package shutdown

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "shutdown")

// Handler 关闭回调
type Handler func(ctx context.Context) error

type entry struct {
	name    string
	handler Handler
}

// Manager 优雅关闭管理器
type Manager struct {
	mu      sync.Mutex
	entries []entry
}

// NewManager 创建关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册一个命名的关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry{name: name, handler: handler})
}

// Shutdown 按注册的逆序执行关闭回调（后开的先关）。
// ctx 应带超时，避免某个回调卡住整个退出流程。
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	entries := make([]entry, len(m.entries))
	copy(entries, m.entries)
	m.mu.Unlock()

	if len(entries) == 0 {
		return
	}
	log.Infof("开始优雅关闭，共 %d 个回调", len(entries))

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		select {
		case <-ctx.Done():
			log.Warnf("关闭超时，剩余 %d 个回调未执行: %v", i+1, ctx.Err())
			return
		default:
		}
		if err := e.handler(ctx); err != nil {
			log.Errorf("关闭回调失败: %s: %v", e.name, err)
		} else {
			log.Debugf("关闭回调完成: %s", e.name)
		}
	}
	log.Info("所有关闭回调已完成")
}
