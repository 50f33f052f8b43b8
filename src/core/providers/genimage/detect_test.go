package genimage

import (
	"testing"
)

func TestSanitizeModelJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "干净的JSON数组",
			input:    `[{"label":"cat"}]`,
			expected: `[{"label":"cat"}]`,
		},
		{
			name:     "带json围栏",
			input:    "```json\n[{\"label\":\"cat\"}]\n```",
			expected: `[{"label":"cat"}]`,
		},
		{
			name:     "带纯围栏",
			input:    "```\n[1,2]\n```",
			expected: "[1,2]",
		},
		{
			name:     "前后带说明文字",
			input:    "检测结果如下：[{\"label\":\"dog\"}] 以上。",
			expected: `[{"label":"dog"}]`,
		},
		{
			name:     "没有数组",
			input:    "抱歉，图中没有找到目标物体。",
			expected: "",
		},
		{
			name:     "只有左括号",
			input:    "[1,2",
			expected: "",
		},
		{
			name:     "空字符串",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeModelJSON(tt.input); got != tt.expected {
				t.Errorf("sanitizeModelJSON(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseDetectionBoxes(t *testing.T) {
	logger := newTestLogger(t)

	t.Run("正常解析", func(t *testing.T) {
		raw := `[{"label":"猫","xmin":100,"ymin":200,"xmax":400,"ymax":600}]`
		boxes := parseDetectionBoxes(raw, logger)
		if len(boxes) != 1 {
			t.Fatalf("期望1个检测框，得到%d个", len(boxes))
		}
		box := boxes[0]
		if box.Label != "猫" || box.Xmin != 100 || box.Ymin != 200 || box.Xmax != 400 || box.Ymax != 600 {
			t.Errorf("检测框内容不符: %+v", box)
		}
	})

	t.Run("围栏包裹的JSON", func(t *testing.T) {
		raw := "```json\n[{\"label\":\"dog\",\"xmin\":0,\"ymin\":0,\"xmax\":1000,\"ymax\":1000}]\n```"
		boxes := parseDetectionBoxes(raw, logger)
		if len(boxes) != 1 || boxes[0].Label != "dog" {
			t.Errorf("期望解析出dog检测框，得到 %+v", boxes)
		}
	})

	t.Run("解析失败降级为空列表", func(t *testing.T) {
		boxes := parseDetectionBoxes("[{invalid json", logger)
		if boxes == nil {
			t.Fatalf("降级结果应为空列表而不是nil")
		}
		if len(boxes) != 0 {
			t.Errorf("期望空列表，得到 %+v", boxes)
		}
	})

	t.Run("纯文本降级为空列表", func(t *testing.T) {
		boxes := parseDetectionBoxes("图中没有目标物体", logger)
		if boxes == nil || len(boxes) != 0 {
			t.Errorf("期望空列表，得到 %+v", boxes)
		}
	})

	t.Run("空数组", func(t *testing.T) {
		boxes := parseDetectionBoxes("[]", logger)
		if boxes == nil || len(boxes) != 0 {
			t.Errorf("期望空列表，得到 %+v", boxes)
		}
	})
}
