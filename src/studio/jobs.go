package studio

import (
	"net/http"
	"sync"
	"time"

	"imagestudio-server-go/src/core/providers/genimage"
	"imagestudio-server-go/src/task"

	"github.com/gin-gonic/gin"
)

// 已完成任务在注册表中的保留时间
const jobRetention = time.Hour

// jobState 一个异步任务的当前状态快照
type jobState struct {
	ClientID  string
	Op        string
	Status    task.TaskStatus
	Image     string
	Boxes     []genimage.DetectionBox
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// jobRegistry 按任务ID记录状态，供状态查询接口使用
type jobRegistry struct {
	jobs map[string]*jobState
	mu   sync.RWMutex
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*jobState)}
}

func (r *jobRegistry) add(jobID, clientID, op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	now := time.Now()
	r.jobs[jobID] = &jobState{
		ClientID:  clientID,
		Op:        op,
		Status:    task.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *jobRegistry) complete(jobID string, resp *StudioResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.jobs[jobID]
	if !ok {
		return
	}
	state.Status = task.TaskStatusComplete
	if resp != nil {
		state.Image = resp.Image
		state.Boxes = resp.Boxes
	}
	state.UpdatedAt = time.Now()
}

func (r *jobRegistry) fail(jobID string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.jobs[jobID]
	if !ok {
		return
	}
	state.Status = task.TaskStatusFailed
	state.Message = message
	state.UpdatedAt = time.Now()
}

func (r *jobRegistry) remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

func (r *jobRegistry) get(jobID string) (*jobState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.jobs[jobID]
	if !ok {
		return nil, false
	}
	copied := *state
	return &copied, true
}

// prune 清理过期的已完成任务。调用方持有r.mu。
func (r *jobRegistry) prune() {
	cutoff := time.Now().Add(-jobRetention)
	for id, state := range r.jobs {
		if state.Status == task.TaskStatusPending || state.Status == task.TaskStatusRunning {
			continue
		}
		if state.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
}

// handleJobStatus 查询单个异步任务的状态
func (s *DefaultStudioService) handleJobStatus(c *gin.Context) {
	s.addCORSHeaders(c)

	clientID, err := s.verifyAuth(c)
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err.Error())
		return
	}

	jobID := c.Param("id")
	state, ok := s.jobs.get(jobID)
	if !ok || state.ClientID != clientID {
		c.JSON(http.StatusNotFound, JobStatusResponse{Success: false, Message: "任务不存在或已过期"})
		return
	}

	c.JSON(http.StatusOK, JobStatusResponse{
		Success: true,
		JobID:   jobID,
		Op:      state.Op,
		Status:  string(state.Status),
		Image:   state.Image,
		Boxes:   state.Boxes,
		Message: state.Message,
	})
}
