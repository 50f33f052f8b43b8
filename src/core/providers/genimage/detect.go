package genimage

import (
	"encoding/json"
	"strings"

	"imagestudio-server-go/src/core/utils"
)

// DetectionBox 物体检测结果框
// 坐标统一归一化到0-1000，与原图像素尺寸无关
type DetectionBox struct {
	Label string  `json:"label"`
	Xmin  float64 `json:"xmin"`
	Ymin  float64 `json:"ymin"`
	Xmax  float64 `json:"xmax"`
	Ymax  float64 `json:"ymax"`
}

// detectionSchema 结构化输出约束，要求模型直接返回检测框数组
var detectionSchema = map[string]interface{}{
	"type": "ARRAY",
	"items": map[string]interface{}{
		"type": "OBJECT",
		"properties": map[string]interface{}{
			"label": map[string]interface{}{"type": "STRING"},
			"xmin":  map[string]interface{}{"type": "NUMBER"},
			"ymin":  map[string]interface{}{"type": "NUMBER"},
			"xmax":  map[string]interface{}{"type": "NUMBER"},
			"ymax":  map[string]interface{}{"type": "NUMBER"},
		},
		"required": []string{"label", "xmin", "ymin", "xmax", "ymax"},
	},
}

// parseDetectionBoxes 解析模型返回的检测JSON
// 检测只是辅助功能，解析失败时记日志并降级为空列表，不向上抛错
func parseDetectionBoxes(raw string, logger *utils.Logger) []DetectionBox {
	cleaned := sanitizeModelJSON(raw)
	if cleaned == "" {
		logger.Warn("检测响应中没有找到JSON数组", map[string]interface{}{
			"raw": truncateText(raw, 100),
		})
		return []DetectionBox{}
	}

	var boxes []DetectionBox
	if err := json.Unmarshal([]byte(cleaned), &boxes); err != nil {
		logger.Warn("检测JSON解析失败，降级为空结果", map[string]interface{}{
			"error": err.Error(),
			"raw":   truncateText(cleaned, 100),
		})
		return []DetectionBox{}
	}

	return boxes
}

// sanitizeModelJSON 去掉代码围栏等噪音，只保留最外层的JSON数组
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// 剥掉三反引号围栏
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)

	// 只保留最外层 [...]
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
