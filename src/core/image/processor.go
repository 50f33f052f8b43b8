package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"imagestudio-server-go/src/configs"
	"imagestudio-server-go/src/core/utils"
)

// ImageProcessor 图片预处理器
// 负责把UI传来的data URI或URL统一成经过安全验证的base64数据
type ImageProcessor struct {
	config     *configs.GenImageConfig
	validator  *ImageSecurityValidator
	logger     *utils.Logger
	metrics    *ImageMetrics
	httpClient *http.Client
}

// NewImageProcessor 创建新的图片预处理器
func NewImageProcessor(config *configs.GenImageConfig, logger *utils.Logger) (*ImageProcessor, error) {
	validator := NewImageSecurityValidator(&config.Security, logger)

	// 配置HTTP客户端
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// 限制重定向次数为3次
			if len(via) >= 3 {
				return fmt.Errorf("停止重定向：超过最大重定向次数")
			}
			return nil
		},
	}

	return &ImageProcessor{
		config:     config,
		validator:  validator,
		logger:     logger,
		metrics:    &ImageMetrics{},
		httpClient: httpClient,
	}, nil
}

// ProcessImage 处理图片数据，返回验证通过的ImageData（base64+实际格式）
func (p *ImageProcessor) ProcessImage(ctx context.Context, imageData ImageData) (ImageData, error) {
	atomic.AddInt64(&p.metrics.TotalProcessed, 1)

	var finalImageData ImageData

	if imageData.URL != "" {
		// URL类型图片，下载后转base64
		atomic.AddInt64(&p.metrics.URLDownloads, 1)

		base64Data, err := p.downloadImage(ctx, imageData.URL)
		if err != nil {
			atomic.AddInt64(&p.metrics.FailedValidations, 1)
			return ImageData{}, fmt.Errorf("URL图片处理失败: %v", err)
		}

		finalImageData = ImageData{
			Data:   base64Data,
			Format: imageData.Format,
		}
	} else if imageData.Data != "" {
		// 直接处理base64数据
		atomic.AddInt64(&p.metrics.DataURIDirect, 1)
		finalImageData = imageData
	} else {
		return ImageData{}, fmt.Errorf("图片数据为空：既没有URL也没有base64数据")
	}

	// 安全验证
	validationResult := p.validator.ValidateImageData(finalImageData)
	if !validationResult.IsValid {
		atomic.AddInt64(&p.metrics.FailedValidations, 1)
		if validationResult.SecurityRisk != "" {
			atomic.AddInt64(&p.metrics.SecurityIncidents, 1)
			p.logger.Warn("检测到安全威胁", map[string]interface{}{
				"error":         validationResult.Error.Error(),
				"security_risk": validationResult.SecurityRisk,
				"format":        finalImageData.Format,
			})
		}
		return ImageData{}, fmt.Errorf("图片验证失败: %v", validationResult.Error)
	}

	// 以解码出的实际格式为准
	finalImageData.Format = validationResult.Format

	p.logger.Debug("图片处理完成 %v", map[string]interface{}{
		"format":    validationResult.Format,
		"width":     validationResult.Width,
		"height":    validationResult.Height,
		"file_size": validationResult.FileSize,
	})

	return finalImageData, nil
}

// ProcessDataURI 处理data URI输入的便捷入口
func (p *ImageProcessor) ProcessDataURI(ctx context.Context, uri string) (ImageData, error) {
	data, err := FromDataURI(uri)
	if err != nil {
		return ImageData{}, err
	}
	return p.ProcessImage(ctx, data)
}

// downloadImage 下载图片并转为base64
func (p *ImageProcessor) downloadImage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %v", err)
	}

	// 设置User-Agent，避免被某些网站拒绝
	req.Header.Set("User-Agent", "ImageStudio-Bot/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP响应错误: %d %s", resp.StatusCode, resp.Status)
	}

	// 检查Content-Type
	contentType := resp.Header.Get("Content-Type")
	if !isValidImageContentType(contentType) {
		return "", fmt.Errorf("无效的Content-Type: %s", contentType)
	}

	// 检查Content-Length
	if resp.ContentLength > p.config.Security.MaxFileSize {
		return "", fmt.Errorf("文件过大: %d bytes，最大允许: %d bytes",
			resp.ContentLength, p.config.Security.MaxFileSize)
	}

	// 使用LimitReader限制下载大小，防止无限下载
	limitedReader := io.LimitReader(resp.Body, p.config.Security.MaxFileSize)
	imageBytes, err := io.ReadAll(limitedReader)
	if err != nil {
		return "", fmt.Errorf("下载文件失败: %v", err)
	}

	p.logger.Info("图片下载完成", map[string]interface{}{
		"url":          url,
		"content_type": contentType,
		"size":         len(imageBytes),
	})

	return base64.StdEncoding.EncodeToString(imageBytes), nil
}

// isValidImageContentType 检查Content-Type是否为有效的图片类型
func isValidImageContentType(contentType string) bool {
	validContentTypes := []string{
		"image/jpeg",
		"image/jpg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/bmp",
	}

	// Content-Type可能带charset等参数，做包含匹配
	contentTypeLower := strings.ToLower(contentType)
	for _, validType := range validContentTypes {
		if strings.Contains(contentTypeLower, validType) {
			return true
		}
	}

	return false
}

// GetMetrics 获取处理统计信息
func (p *ImageProcessor) GetMetrics() ImageMetrics {
	return ImageMetrics{
		TotalProcessed:    atomic.LoadInt64(&p.metrics.TotalProcessed),
		URLDownloads:      atomic.LoadInt64(&p.metrics.URLDownloads),
		DataURIDirect:     atomic.LoadInt64(&p.metrics.DataURIDirect),
		FailedValidations: atomic.LoadInt64(&p.metrics.FailedValidations),
		SecurityIncidents: atomic.LoadInt64(&p.metrics.SecurityIncidents),
	}
}
