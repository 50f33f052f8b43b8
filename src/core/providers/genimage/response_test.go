package genimage

import (
	"strings"
	"testing"
)

func TestParseImageResponse_FailurePrecedence(t *testing.T) {
	tests := []struct {
		name        string
		resp        *GenerateResponse
		errContains string
	}{
		{
			name:        "空响应",
			resp:        nil,
			errContains: "API返回了空响应",
		},
		{
			name:        "无候选无拦截原因",
			resp:        &GenerateResponse{},
			errContains: "模型没有返回任何生成结果",
		},
		{
			name: "无候选带拦截原因",
			resp: &GenerateResponse{
				PromptFeedback: &PromptFeedback{BlockReason: "SAFETY"},
			},
			errContains: "请求被拦截，原因: SAFETY",
		},
		{
			name: "候选无内容无中止原因",
			resp: &GenerateResponse{
				Candidates: []Candidate{{}},
			},
			errContains: "模型返回了没有内容的响应",
		},
		{
			name: "候选无内容中止原因SAFETY",
			resp: &GenerateResponse{
				Candidates: []Candidate{{FinishReason: "SAFETY"}},
			},
			errContains: "生成请求被安全策略拦截",
		},
		{
			name: "候选无内容中止原因IMAGE_SAFETY",
			resp: &GenerateResponse{
				Candidates: []Candidate{{FinishReason: "IMAGE_SAFETY"}},
			},
			errContains: "生成的图片未通过安全审核",
		},
		{
			name: "未知中止原因原样透出",
			resp: &GenerateResponse{
				Candidates: []Candidate{{FinishReason: "MAX_TOKENS"}},
			},
			errContains: "生成中止，原因: MAX_TOKENS",
		},
		{
			name: "内容无分段",
			resp: &GenerateResponse{
				Candidates: []Candidate{{Content: &Content{}}},
			},
			errContains: "模型响应中没有内容分段",
		},
		{
			name: "只有文本没有图片",
			resp: &GenerateResponse{
				Candidates: []Candidate{{Content: &Content{Parts: []ResponsePart{
					{Text: "我无法生成这张图片"},
				}}}},
			},
			errContains: "模型返回了文本而不是图片: 我无法生成这张图片",
		},
		{
			name: "既无文本也无图片",
			resp: &GenerateResponse{
				Candidates: []Candidate{{Content: &Content{Parts: []ResponsePart{
					{InlineData: &InlineData{MimeType: "image/png", Data: ""}},
				}}}},
			},
			errContains: "响应中没有图片数据",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseImageResponse(tt.resp)
			if err == nil {
				t.Fatalf("期望错误，得到成功")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("错误信息 = %q，应包含 %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestParseImageResponse_Success(t *testing.T) {
	t.Run("第一个图片段胜出", func(t *testing.T) {
		resp := &GenerateResponse{
			Candidates: []Candidate{{Content: &Content{Parts: []ResponsePart{
				{InlineData: &InlineData{MimeType: "image/webp", Data: "AAAA"}},
				{InlineData: &InlineData{MimeType: "image/png", Data: "BBBB"}},
			}}}},
		}
		uri, err := ParseImageResponse(resp)
		if err != nil {
			t.Fatalf("期望成功，得到错误: %v", err)
		}
		// 无论上游MIME声明如何，统一按PNG封装
		if uri != "data:image/png;base64,AAAA" {
			t.Errorf("结果 = %q, want %q", uri, "data:image/png;base64,AAAA")
		}
	})

	t.Run("文本在前图片在后仍取图片", func(t *testing.T) {
		resp := &GenerateResponse{
			Candidates: []Candidate{{Content: &Content{Parts: []ResponsePart{
				{Text: "这是你要的图片"},
				{InlineData: &InlineData{MimeType: "image/png", Data: "CCCC"}},
			}}}},
		}
		uri, err := ParseImageResponse(resp)
		if err != nil {
			t.Fatalf("期望成功，得到错误: %v", err)
		}
		if uri != "data:image/png;base64,CCCC" {
			t.Errorf("结果 = %q, want %q", uri, "data:image/png;base64,CCCC")
		}
	})

	t.Run("只取第一个候选", func(t *testing.T) {
		resp := &GenerateResponse{
			Candidates: []Candidate{
				{Content: &Content{Parts: []ResponsePart{{Text: "没有图"}}}},
				{Content: &Content{Parts: []ResponsePart{
					{InlineData: &InlineData{Data: "DDDD"}},
				}}},
			},
		}
		_, err := ParseImageResponse(resp)
		if err == nil {
			t.Errorf("第一个候选没有图片时应失败，不应读后续候选")
		}
	})
}

func TestParseImageResponse_TextTruncation(t *testing.T) {
	long := strings.Repeat("很", 150)
	resp := &GenerateResponse{
		Candidates: []Candidate{{Content: &Content{Parts: []ResponsePart{
			{Text: long},
		}}}},
	}
	_, err := ParseImageResponse(resp)
	if err == nil {
		t.Fatalf("期望错误，得到成功")
	}
	want := strings.Repeat("很", 100) + "..."
	if !strings.Contains(err.Error(), want) {
		t.Errorf("长文本应按100字符截断，错误信息: %q", err.Error())
	}
	if strings.Contains(err.Error(), strings.Repeat("很", 101)) {
		t.Errorf("截断后不应保留超过100个字符")
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{
			name:     "不超限原样返回",
			input:    "短文本",
			max:      10,
			expected: "短文本",
		},
		{
			name:     "刚好等于上限",
			input:    "12345",
			max:      5,
			expected: "12345",
		},
		{
			name:     "超限按字符截断",
			input:    "一二三四五六",
			max:      4,
			expected: "一二三四...",
		},
		{
			name:     "空字符串",
			input:    "",
			max:      5,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateText(tt.input, tt.max); got != tt.expected {
				t.Errorf("truncateText(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.expected)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	t.Run("取第一段文本", func(t *testing.T) {
		resp := &GenerateResponse{
			Candidates: []Candidate{{Content: &Content{Parts: []ResponsePart{
				{InlineData: &InlineData{Data: "AAAA"}},
				{Text: "[]"},
			}}}},
		}
		if got := extractText(resp); got != "[]" {
			t.Errorf("extractText = %q, want %q", got, "[]")
		}
	})

	t.Run("空响应返回空串", func(t *testing.T) {
		if got := extractText(nil); got != "" {
			t.Errorf("extractText(nil) = %q, want \"\"", got)
		}
		if got := extractText(&GenerateResponse{}); got != "" {
			t.Errorf("extractText(空候选) = %q, want \"\"", got)
		}
	})
}
