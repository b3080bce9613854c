package lifecycle

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ============================================================================
//                              Scheduler - 续期调度
// ============================================================================

// Scheduler 按本地端口维护续期定时器
//
// 每个端口最多一个定时器，重复调度会替换旧定时器。定时器触发后端口仍保留
// 在调度表中，直到下一次 Schedule、Cancel 或 Close；这样 Close 返回的端口
// 集合与"最近一次成功映射启用了自动续期"的端口一致。
type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[int]*refreshEntry
	gen     uint64
	closed  bool
}

type refreshEntry struct {
	timer *clock.Timer
	gen   uint64
}

// NewScheduler 创建续期调度器，clk 为 nil 时使用系统时钟
func NewScheduler(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock:   clk,
		entries: make(map[int]*refreshEntry),
	}
}

// Schedule 在 after 之后对 port 执行 fn，替换该端口已有的定时器
//
// 调度器关闭后返回 false。fn 在定时器的 goroutine 中执行。
func (s *Scheduler) Schedule(port int, after time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if old, ok := s.entries[port]; ok {
		old.timer.Stop()
	}

	s.gen++
	gen := s.gen
	e := &refreshEntry{gen: gen}
	e.timer = s.clock.AfterFunc(after, func() {
		if !s.fire(port, gen) {
			return
		}
		fn()
	})
	s.entries[port] = e
	return true
}

// fire 检查定时器是否仍然有效
func (s *Scheduler) fire(port int, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	e, ok := s.entries[port]
	return ok && e.gen == gen
}

// Cancel 取消端口的续期定时器，返回该端口此前是否存在定时器
func (s *Scheduler) Cancel(port int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[port]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, port)
	return true
}

// Has 返回端口是否存在续期定时器
func (s *Scheduler) Has(port int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[port]
	return ok
}

// Ports 返回所有存在续期定时器的端口（升序）
func (s *Scheduler) Ports() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.portsLocked()
}

// Close 停止所有定时器并拒绝后续调度，返回关闭前存在定时器的端口（升序）
//
// 已触发但尚未检查有效性的回调不会再执行。
func (s *Scheduler) Close() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ports := s.portsLocked()
	for _, e := range s.entries {
		e.timer.Stop()
	}
	s.entries = make(map[int]*refreshEntry)
	s.closed = true
	return ports
}

func (s *Scheduler) portsLocked() []int {
	ports := make([]int, 0, len(s.entries))
	for p := range s.entries {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}
