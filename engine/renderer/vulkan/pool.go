package vulkan

import "sync"

type LockGroup string

const (
	// QueueManagement guards submit, present and idle waits.
	QueueManagement LockGroup = "queue_management"
	// CommandPoolManagement guards allocations from the shared command pool.
	CommandPoolManagement LockGroup = "command_pool_management"
	DescriptorManagement  LockGroup = "descriptor_management"
	PipelineManagement    LockGroup = "pipeline_management"
)

// lockPool hands out one mutex per group. Calls in different groups do
// not block each other.
type lockPool struct {
	mu    sync.Mutex
	locks map[LockGroup]*sync.Mutex
}

func newLockPool() *lockPool {
	return &lockPool{locks: make(map[LockGroup]*sync.Mutex)}
}

func (p *lockPool) lock(group LockGroup) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[group]
	if !ok {
		l = &sync.Mutex{}
		p.locks[group] = l
	}
	return l
}

func (p *lockPool) SafeCall(group LockGroup, fn func() error) error {
	l := p.lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}
