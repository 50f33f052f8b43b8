package image

import (
	"fmt"
	"regexp"
	"strings"
)

// ImageData 图片数据结构
type ImageData struct {
	URL    string `json:"url,omitempty"`    // 图片URL地址
	Data   string `json:"data,omitempty"`   // base64编码的图片数据
	Format string `json:"format,omitempty"` // 图片格式：jpeg, png, webp, gif
}

// ValidationResult 图片验证结果
type ValidationResult struct {
	IsValid      bool   // 是否有效
	Format       string // 实际格式
	Width        int    // 图片宽度
	Height       int    // 图片高度
	FileSize     int64  // 文件大小
	Error        error  // 错误信息
	SecurityRisk string // 安全风险描述
}

// ImageMetrics 图片处理统计信息
type ImageMetrics struct {
	TotalProcessed    int64 // 总处理数量
	URLDownloads      int64 // URL下载次数
	DataURIDirect     int64 // data URI直接处理次数
	FailedValidations int64 // 验证失败次数
	SecurityIncidents int64 // 安全事件次数
}

// data URI前缀：data:image/<fmt>;base64,
var dataURIPattern = regexp.MustCompile(`^data:image/([a-zA-Z0-9.+-]+);base64,`)

// FromDataURI 将浏览器上传的data URI解析为ImageData
// 无前缀时按纯base64处理，格式留空由魔数检测兜底
func FromDataURI(uri string) (ImageData, error) {
	if uri == "" {
		return ImageData{}, fmt.Errorf("图片数据为空")
	}

	if m := dataURIPattern.FindStringSubmatch(uri); m != nil {
		payload := uri[len(m[0]):]
		if payload == "" {
			return ImageData{}, fmt.Errorf("data URI载荷为空")
		}
		return ImageData{Data: payload, Format: strings.ToLower(m[1])}, nil
	}

	return ImageData{Data: uri}, nil
}

// ToDataURI 将base64数据包装为data URI
func ToDataURI(format, base64Data string) string {
	if format == "" {
		format = "png"
	}
	return fmt.Sprintf("data:image/%s;base64,%s", format, base64Data)
}
