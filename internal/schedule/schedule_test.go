package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_AdvanceFiresInTimeOrder(t *testing.T) {
	m := NewManual()
	var order []string
	m.Every(10*time.Millisecond, func() { order = append(order, "a") })
	m.Every(25*time.Millisecond, func() { order = append(order, "b") })

	m.Advance(30 * time.Millisecond)
	assert.Equal(t, []string{"a", "a", "b", "a"}, order)
}

func TestManual_CancelStopsTask(t *testing.T) {
	m := NewManual()
	var n int
	task := m.Every(time.Millisecond, func() { n++ })
	m.Advance(3 * time.Millisecond)
	task.Cancel()
	m.Advance(10 * time.Millisecond)

	assert.Equal(t, 3, n)
	assert.Zero(t, m.Active())
}

func TestManual_CancelFromInsideTask(t *testing.T) {
	m := NewManual()
	var n int
	var task Task
	task = m.Every(time.Millisecond, func() {
		n++
		task.Cancel()
	})
	m.Advance(5 * time.Millisecond)
	assert.Equal(t, 1, n)
}

func TestReal_EveryAndCancel(t *testing.T) {
	var n atomic.Int32
	task := Real{}.Every(time.Millisecond, func() { n.Add(1) })
	assert.Eventually(t, func() bool { return n.Load() >= 2 }, time.Second, time.Millisecond)
	task.Cancel()
	task.Cancel()
}
