package genimage

import (
	"errors"
	"fmt"
)

// GenerateResponse 生成API的原始响应结构
type GenerateResponse struct {
	Candidates     []Candidate     `json:"candidates,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
}

// PromptFeedback 提示词级别的拦截信息
type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// Candidate 单个生成候选
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// Content 候选的内容，分段有序
type Content struct {
	Role  string         `json:"role,omitempty"`
	Parts []ResponsePart `json:"parts,omitempty"`
}

// ResponsePart 响应内容段，内联图片或文本
type ResponsePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData 内联图片数据
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"` // base64
}

// 已知中止原因到用户可见信息的映射，未命中的原样透出
var finishReasonMessages = map[string]string{
	"SAFETY":       "生成请求被安全策略拦截，请调整提示词后重试",
	"RECITATION":   "生成内容疑似涉及受保护素材，已被拦截",
	"OTHER":        "模型因未知原因中止了本次生成",
	"IMAGE_SAFETY": "生成的图片未通过安全审核，请调整提示词后重试",
	"IMAGE_OTHER":  "图片生成失败，请换个提示词或稍后重试",
}

// ParseImageResponse 校验响应并提取唯一的结果图片
// 校验按固定顺序逐级失败，顺序决定了用户最终看到哪条错误信息：
// 空响应 → 无候选(含拦截原因) → 无内容(含中止原因) → 无分段 → 图片优先 → 文本兜底
func ParseImageResponse(resp *GenerateResponse) (string, error) {
	if resp == nil {
		return "", errors.New("API返回了空响应")
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("请求被拦截，原因: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("模型没有返回任何生成结果")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		if candidate.FinishReason != "" {
			if msg, ok := finishReasonMessages[candidate.FinishReason]; ok {
				return "", errors.New(msg)
			}
			return "", fmt.Errorf("生成中止，原因: %s", candidate.FinishReason)
		}
		return "", errors.New("模型返回了没有内容的响应")
	}

	if len(candidate.Content.Parts) == 0 {
		return "", errors.New("模型响应中没有内容分段")
	}

	// 按顺序扫描，第一个内联图片段胜出；编辑接口固定返回PNG，统一按PNG封装
	for _, part := range candidate.Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			return "data:image/png;base64," + part.InlineData.Data, nil
		}
	}

	// 没有图片时取文本段做诊断信息
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			return "", fmt.Errorf("模型返回了文本而不是图片: %s", truncateText(part.Text, 100))
		}
	}

	return "", errors.New("响应中没有图片数据")
}

// extractText 取响应中第一段文本，物体检测等结构化输出使用
func extractText(resp *GenerateResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			return part.Text
		}
	}
	return ""
}

// truncateText 按字符截断文本用于诊断信息
func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
