// Package schedule 提供可取消的周期任务，测试中可用 Manual 手动驱动
package schedule

import (
	"sync"
	"time"
)

// Task 周期任务句柄
type Task interface {
	Cancel()
}

// Scheduler 周期任务调度器
type Scheduler interface {
	Every(d time.Duration, fn func()) Task
}

// Real 基于 time.Ticker 的调度器
type Real struct{}

type tickerTask struct {
	stop chan struct{}
	once sync.Once
}

// Every 每隔 d 调用一次 fn，直到 Cancel
func (Real) Every(d time.Duration, fn func()) Task {
	d = clampPeriod(d)
	t := &tickerTask{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				select {
				case <-t.stop:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() { close(t.stop) })
}

func clampPeriod(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

// Manual 手动驱动的调度器，按虚拟时间触发任务；测试用
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	period    time.Duration
	next      time.Duration
	seq       int
	fn        func()
	cancelled bool
	owner     *Manual
}

// NewManual 创建手动调度器
func NewManual() *Manual { return &Manual{} }

func (m *Manual) Every(d time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	d = clampPeriod(d)
	t := &manualTask{period: d, next: m.now + d, seq: m.seq, fn: fn, owner: m}
	m.tasks = append(m.tasks, t)
	return t
}

func (t *manualTask) Cancel() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.cancelled = true
}

// Advance 推进虚拟时间 d，按时间先后（同刻按注册顺序）同步执行到期任务
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var due *manualTask
		for _, t := range m.tasks {
			if t.cancelled || t.next > target {
				continue
			}
			if due == nil || t.next < due.next || (t.next == due.next && t.seq < due.seq) {
				due = t
			}
		}
		if due == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = due.next
		due.next += due.period
		fn := due.fn
		m.mu.Unlock()

		fn()
	}
}

// Active 未取消的任务数
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Periods 未取消任务的周期（按注册顺序）
func (m *Manual) Periods() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, t := range m.tasks {
		if !t.cancelled {
			out = append(out, t.period)
		}
	}
	return out
}
