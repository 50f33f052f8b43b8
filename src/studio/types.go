package studio

import (
	"time"

	"imagestudio-server-go/src/core/providers/genimage"
)

// LabeledImageInput 混合操作的单张输入图及其指代名称
type LabeledImageInput struct {
	Image string `json:"image"` // data URI
	Label string `json:"label"` // 在指令中引用该图的名称
}

// OperationRequest 编辑操作请求结构，各操作只使用自己需要的字段
type OperationRequest struct {
	Prompt       string              `json:"prompt,omitempty"`       // generate / background 替换
	Image        string              `json:"image,omitempty"`        // 输入图 data URI
	Mask         string              `json:"mask,omitempty"`         // 蒙版 data URI
	Style        string              `json:"style,omitempty"`        // 风格描述
	Images       []LabeledImageInput `json:"images,omitempty"`       // mix 的输入图列表
	Instruction  string              `json:"instruction,omitempty"`  // mix 的合成指令
	Query        string              `json:"query,omitempty"`        // detect 的检测目标
	APIKey       string              `json:"api_key,omitempty"`      // upscale 的独立密钥
	AspectRatio  string              `json:"aspect_ratio,omitempty"` // 如 "1:1"、"16:9"
	Instructions string              `json:"instructions,omitempty"` // 追加的生成指令
}

// StudioResponse 编辑操作标准响应结构
type StudioResponse struct {
	Success bool                    `json:"success"`
	Image   string                  `json:"image,omitempty"`   // 结果图 data URI（图像类操作成功时）
	Boxes   []genimage.DetectionBox `json:"boxes,omitempty"`   // 检测框列表（detect成功时）
	Message string                  `json:"message,omitempty"` // 错误信息（失败时）
}

// JobRequest 异步任务提交请求
type JobRequest struct {
	Op string `json:"op"` // generate/restyle/inpaint/background/mix/upscale
	OperationRequest
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
}

// JobSubmitResponse 异步任务提交响应
type JobSubmitResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// JobStatusResponse 异步任务状态查询响应
type JobStatusResponse struct {
	Success bool                    `json:"success"`
	JobID   string                  `json:"job_id,omitempty"`
	Op      string                  `json:"op,omitempty"`
	Status  string                  `json:"status,omitempty"` // pending/running/complete/failed
	Image   string                  `json:"image,omitempty"`
	Boxes   []genimage.DetectionBox `json:"boxes,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// JobNotification 通过WebSocket推送的任务结果
type JobNotification struct {
	Type    string                  `json:"type"` // 固定为 "job"
	JobID   string                  `json:"job_id"`
	Op      string                  `json:"op"`
	Success bool                    `json:"success"`
	Image   string                  `json:"image,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// HistoryItem 历史记录响应条目
type HistoryItem struct {
	ID        uint      `json:"id"`
	Operation string    `json:"operation"`
	Prompt    string    `json:"prompt"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	ThumbURL  string    `json:"thumb_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse 历史记录查询响应
type HistoryResponse struct {
	Success bool          `json:"success"`
	Items   []HistoryItem `json:"items"`
	Message string        `json:"message,omitempty"`
}
