package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"imagestudio-server-go/src/configs"
	"imagestudio-server-go/src/core/utils"

	_ "image/gif"  // 注册GIF解码器
	_ "image/jpeg" // 注册JPEG解码器
	_ "image/png"  // 注册PNG解码器

	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// ImageSecurityValidator 图片安全验证器
type ImageSecurityValidator struct {
	config *configs.SecurityConfig
	logger *utils.Logger
}

// NewImageSecurityValidator 创建新的图片安全验证器
func NewImageSecurityValidator(config *configs.SecurityConfig, logger *utils.Logger) *ImageSecurityValidator {
	return &ImageSecurityValidator{
		config: config,
		logger: logger,
	}
}

// 图片格式魔数签名
var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8}, // JPEG文件只需要前两个字节
	"jpg":  {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46}, // RIFF，需要进一步检查WEBP标识
	"bmp":  {0x42, 0x4D},
}

// 可执行文件与压缩包文件头，图片里不应该出现在开头
var dangerousSignatures = map[string][]byte{
	"PE":     {0x4D, 0x5A},
	"ELF":    {0x7F, 0x45, 0x4C, 0x46},
	"Mach-O": {0xCA, 0xFE, 0xBA, 0xBE},
	"ZIP":    {0x50, 0x4B, 0x03, 0x04},
	"GZIP":   {0x1F, 0x8B, 0x08},
}

// ValidateDataURI 验证浏览器上传的data URI图片
func (v *ImageSecurityValidator) ValidateDataURI(uri string) ValidationResult {
	data, err := FromDataURI(uri)
	if err != nil {
		return ValidationResult{IsValid: false, Error: err}
	}
	return v.ValidateImageData(data)
}

// ValidateImageData 验证图片数据
func (v *ImageSecurityValidator) ValidateImageData(imageData ImageData) ValidationResult {
	result := ValidationResult{IsValid: false}

	if imageData.Data == "" {
		result.Error = fmt.Errorf("缺少图片数据")
		return result
	}

	imageBytes, err := base64.StdEncoding.DecodeString(imageData.Data)
	if err != nil {
		result.Error = fmt.Errorf("base64解码失败: %v", err)
		result.SecurityRisk = "无效的base64数据"
		return result
	}

	// 1. 基础大小检查
	if int64(len(imageBytes)) > v.config.MaxFileSize {
		result.Error = fmt.Errorf("文件大小超限: %d bytes，最大允许: %d bytes", len(imageBytes), v.config.MaxFileSize)
		result.SecurityRisk = "文件过大，可能是DoS攻击"
		return result
	}

	// 2. 格式支持检查
	if imageData.Format != "" && !v.isFormatAllowed(imageData.Format) {
		result.Error = fmt.Errorf("不支持的格式: %s", imageData.Format)
		result.SecurityRisk = "使用了不被允许的格式"
		return result
	}

	// 3. 恶意内容检测
	if v.config.EnableDeepScan {
		if risk := v.scanForMaliciousContent(imageBytes); risk != "" {
			result.Error = fmt.Errorf("检测到潜在恶意内容")
			result.SecurityRisk = risk
			v.logger.Warn("检测到可疑内容", map[string]interface{}{
				"risk":   risk,
				"format": imageData.Format,
				"size":   len(imageBytes),
			})
			return result
		}
	}

	// 4. 文件头与声明格式不一致时只告警，交给解码做最终判断
	if imageData.Format != "" && !v.validateFileSignature(imageBytes, imageData.Format) {
		v.logger.Warn("文件头与声明格式不匹配，继续尝试解码", map[string]interface{}{
			"declared_format": imageData.Format,
			"actual_header":   fmt.Sprintf("%x", imageBytes[:minInt(len(imageBytes), 16)]),
		})
	}

	// 5. 解码验证，最可靠的判断方式
	return v.validateImageDecoding(imageBytes, imageData.Format)
}

// validateFileSignature 验证文件头签名
func (v *ImageSecurityValidator) validateFileSignature(data []byte, format string) bool {
	signature, exists := imageSignatures[strings.ToLower(format)]
	if !exists {
		return false
	}

	if !bytes.HasPrefix(data, signature) {
		return false
	}

	// WEBP需要额外验证RIFF块中的WEBP标识
	if strings.ToLower(format) == "webp" {
		return len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP"))
	}

	return true
}

// isFormatAllowed 检查格式是否被允许
func (v *ImageSecurityValidator) isFormatAllowed(format string) bool {
	formatLower := strings.ToLower(format)
	for _, allowedFormat := range v.config.AllowedFormats {
		if strings.ToLower(allowedFormat) == formatLower {
			return true
		}
	}
	return false
}

// scanForMaliciousContent 扫描恶意内容，返回风险描述，空串表示未发现
func (v *ImageSecurityValidator) scanForMaliciousContent(data []byte) string {
	for name, signature := range dangerousSignatures {
		if bytes.HasPrefix(data, signature) {
			return fmt.Sprintf("文件开头包含%s签名", name)
		}
	}

	// SVG不在允许格式内，但伪装成图片的SVG脚本仍需拦截
	dataStr := strings.ToLower(string(data))
	if strings.Contains(dataStr, "<svg") {
		suspiciousStrings := []string{
			"<script", "javascript:", "vbscript:", "onload=", "onerror=",
			"eval(", "document.cookie", "<iframe", "<object", "<embed",
		}
		for _, suspicious := range suspiciousStrings {
			if strings.Contains(dataStr, suspicious) {
				return fmt.Sprintf("SVG中包含可疑内容: %s", suspicious)
			}
		}
	}

	return ""
}

// validateImageDecoding 验证图片解码
func (v *ImageSecurityValidator) validateImageDecoding(data []byte, format string) ValidationResult {
	result := ValidationResult{Format: format}

	config, actualFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		result.Error = fmt.Errorf("图片解码失败: %v", err)
		result.SecurityRisk = "可能包含恶意载荷或损坏的图片数据"
		return result
	}

	// 更新实际格式
	if actualFormat != "" {
		result.Format = actualFormat
	}

	// 检查尺寸限制
	if config.Width > v.config.MaxWidth || config.Height > v.config.MaxHeight {
		result.Error = fmt.Errorf("图片尺寸超限: %dx%d，最大允许: %dx%d",
			config.Width, config.Height, v.config.MaxWidth, v.config.MaxHeight)
		result.SecurityRisk = "图片过大，可能消耗过多资源"
		return result
	}

	// 检查像素总数
	totalPixels := int64(config.Width) * int64(config.Height)
	if totalPixels > v.config.MaxPixels {
		result.Error = fmt.Errorf("像素总数超限: %d，最大允许: %d", totalPixels, v.config.MaxPixels)
		result.SecurityRisk = "像素过多，可能导致内存耗尽"
		return result
	}

	result.IsValid = true
	result.Width = config.Width
	result.Height = config.Height
	result.FileSize = int64(len(data))

	return result
}

// minInt 辅助函数：返回两个整数中的较小值
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
