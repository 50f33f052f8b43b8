package image

import (
	"testing"
)

func TestFromDataURI(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		expectErr      bool
		expectedData   string
		expectedFormat string
	}{
		{
			name:           "png data URI",
			input:          "data:image/png;base64,iVBORw0KGgo=",
			expectedData:   "iVBORw0KGgo=",
			expectedFormat: "png",
		},
		{
			name:           "jpeg data URI",
			input:          "data:image/jpeg;base64,AAAA",
			expectedData:   "AAAA",
			expectedFormat: "jpeg",
		},
		{
			name:           "大写格式转小写",
			input:          "data:image/PNG;base64,AAAA",
			expectedData:   "AAAA",
			expectedFormat: "png",
		},
		{
			name:           "svg+xml这类带符号的格式",
			input:          "data:image/svg+xml;base64,AAAA",
			expectedData:   "AAAA",
			expectedFormat: "svg+xml",
		},
		{
			name:           "纯base64无前缀",
			input:          "AAAA",
			expectedData:   "AAAA",
			expectedFormat: "",
		},
		{
			name:      "空字符串",
			input:     "",
			expectErr: true,
		},
		{
			name:      "只有前缀没有载荷",
			input:     "data:image/png;base64,",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := FromDataURI(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("期望错误，得到成功: %+v", data)
				}
				return
			}
			if err != nil {
				t.Fatalf("期望成功，得到错误: %v", err)
			}
			if data.Data != tt.expectedData {
				t.Errorf("Data = %q, want %q", data.Data, tt.expectedData)
			}
			if data.Format != tt.expectedFormat {
				t.Errorf("Format = %q, want %q", data.Format, tt.expectedFormat)
			}
		})
	}
}

func TestToDataURI(t *testing.T) {
	t.Run("指定格式", func(t *testing.T) {
		uri := ToDataURI("jpeg", "AAAA")
		if uri != "data:image/jpeg;base64,AAAA" {
			t.Errorf("ToDataURI = %q", uri)
		}
	})

	t.Run("格式为空时默认png", func(t *testing.T) {
		uri := ToDataURI("", "AAAA")
		if uri != "data:image/png;base64,AAAA" {
			t.Errorf("ToDataURI = %q", uri)
		}
	})
}

func TestDataURIRoundTrip(t *testing.T) {
	original := "data:image/webp;base64,UklGRg=="
	data, err := FromDataURI(original)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if got := ToDataURI(data.Format, data.Data); got != original {
		t.Errorf("往返结果 = %q, want %q", got, original)
	}
}
