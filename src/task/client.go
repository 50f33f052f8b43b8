package task

import (
	"fmt"
	"sync"
	"time"
)

// defaultQuotas returns the daily quota table for a user level.
// 检测任务不走配额（轻量、只读），所以这里只限制生成与编辑。
func defaultQuotas(level UserLevel) (max map[TaskType]int, concurrent map[TaskType]int) {
	switch level {
	case UserLevelBusiness:
		max = map[TaskType]int{
			TaskTypeImageGen:  500,
			TaskTypeImageEdit: 500,
			TaskTypeScheduled: 50,
		}
		concurrent = map[TaskType]int{
			TaskTypeImageGen:  8,
			TaskTypeImageEdit: 8,
			TaskTypeScheduled: 4,
		}
	case UserLevelPremium:
		max = map[TaskType]int{
			TaskTypeImageGen:  100,
			TaskTypeImageEdit: 100,
			TaskTypeScheduled: 10,
		}
		concurrent = map[TaskType]int{
			TaskTypeImageGen:  4,
			TaskTypeImageEdit: 4,
			TaskTypeScheduled: 2,
		}
	default:
		max = map[TaskType]int{
			TaskTypeImageGen:  20,
			TaskTypeImageEdit: 20,
			TaskTypeScheduled: 2,
		}
		concurrent = map[TaskType]int{
			TaskTypeImageGen:  2,
			TaskTypeImageEdit: 2,
			TaskTypeScheduled: 1,
		}
	}
	return max, concurrent
}

// NewResourceQuota creates a quota tracker for the given user level
func NewResourceQuota(level UserLevel) *ResourceQuota {
	maxQuota, maxConcurrent := defaultQuotas(level)
	return &ResourceQuota{
		MaxQuota:       maxQuota,
		UsedQuota:      make(map[TaskType]int),
		MaxConcurrent:  maxConcurrent,
		CurrentRunning: make(map[TaskType]int),
		UserLevel:      level,
		LastResetDate:  time.Now(),
	}
}

// SetUserLevel replaces the quota table, keeping today's usage counters
func (q *ResourceQuota) SetUserLevel(level UserLevel) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.MaxQuota, q.MaxConcurrent = defaultQuotas(level)
	q.UserLevel = level
}

// resetIfNewDay clears daily usage counters after midnight. Caller holds q.mu.
func (q *ResourceQuota) resetIfNewDay() {
	now := time.Now()
	if now.YearDay() != q.LastResetDate.YearDay() || now.Year() != q.LastResetDate.Year() {
		q.UsedQuota = make(map[TaskType]int)
		q.LastResetDate = now
	}
}

// TryAcquire atomically checks quota and concurrency, reserving a slot on success
func (q *ResourceQuota) TryAcquire(taskType TaskType) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.resetIfNewDay()

	if maxQuota, ok := q.MaxQuota[taskType]; ok {
		if q.UsedQuota[taskType] >= maxQuota {
			return fmt.Errorf("今日 %s 任务配额已用完（%d/%d）", taskType, q.UsedQuota[taskType], maxQuota)
		}
	}
	if maxConcurrent, ok := q.MaxConcurrent[taskType]; ok {
		if q.CurrentRunning[taskType] >= maxConcurrent {
			return fmt.Errorf("%s 任务并发已达上限（%d）", taskType, maxConcurrent)
		}
	}

	q.UsedQuota[taskType]++
	q.CurrentRunning[taskType]++
	return nil
}

// Release frees the concurrency slot when a task finishes
func (q *ResourceQuota) Release(taskType TaskType) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.CurrentRunning[taskType] > 0 {
		q.CurrentRunning[taskType]--
	}
}

// Usage reports used/max for a task type
func (q *ResourceQuota) Usage(taskType TaskType) (used, max int) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.UsedQuota[taskType], q.MaxQuota[taskType]
}

// Refund undoes a TryAcquire when the task never ran (submit failed)
func (q *ResourceQuota) Refund(taskType TaskType) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.UsedQuota[taskType] > 0 {
		q.UsedQuota[taskType]--
	}
	if q.CurrentRunning[taskType] > 0 {
		q.CurrentRunning[taskType]--
	}
}

// NewClientContext creates a per-client context with the default quota
func NewClientContext(clientID string, level UserLevel) *ClientContext {
	return &ClientContext{
		ID:            clientID,
		ResourceQuota: NewResourceQuota(level),
	}
}

// ClientManager tracks per-client contexts and quotas
type ClientManager struct {
	clients map[string]*ClientContext
	mu      sync.RWMutex
}

func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[string]*ClientContext),
	}
}

// GetClientContext returns the client context, creating one with the
// basic level on first sight
func (cm *ClientManager) GetClientContext(clientID string) (*ClientContext, error) {
	if clientID == "" {
		return nil, fmt.Errorf("客户端ID不能为空")
	}

	cm.mu.RLock()
	ctx, exists := cm.clients[clientID]
	cm.mu.RUnlock()
	if exists {
		return ctx, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if ctx, exists = cm.clients[clientID]; exists {
		return ctx, nil
	}
	ctx = NewClientContext(clientID, UserLevelBasic)
	cm.clients[clientID] = ctx
	return ctx, nil
}

// SetClientLevel updates a client's user level, creating the context if needed
func (cm *ClientManager) SetClientLevel(clientID string, level UserLevel) error {
	ctx, err := cm.GetClientContext(clientID)
	if err != nil {
		return err
	}
	ctx.ResourceQuota.SetUserLevel(level)
	return nil
}

// RemoveClient drops a disconnected client's context
func (cm *ClientManager) RemoveClient(clientID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.clients, clientID)
}

// checkDailyReset clears daily usage for all clients after midnight
func (cm *ClientManager) checkDailyReset() {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, ctx := range cm.clients {
		ctx.ResourceQuota.mu.Lock()
		ctx.ResourceQuota.resetIfNewDay()
		ctx.ResourceQuota.mu.Unlock()
	}
}
