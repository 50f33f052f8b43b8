package genimage

import (
	"context"
	"fmt"
	"strings"

	"imagestudio-server-go/src/configs"
	"imagestudio-server-go/src/core/image"
	"imagestudio-server-go/src/core/providers"
	"imagestudio-server-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

var _ providers.Provider = (*Provider)(nil)

// Config 生成提供者配置结构
type Config struct {
	Type         string
	ModelName    string
	DetectModel  string
	UpscaleModel string
	BaseURL      string
	APIKey       string
	MaxRetries   int
	Security     configs.SecurityConfig
	Data         map[string]interface{}
}

// GenerateOptions 单次生成的可选参数
type GenerateOptions struct {
	AspectRatio  string // 如 "1:1"、"16:9"
	Instructions string // 追加的系统指令
}

// Provider 图像生成提供者，封装所有面向UI的编辑能力
// 每个操作独立完成 构建请求→限流重试→解析结果，调用之间没有共享可变状态
type Provider struct {
	config         *Config
	imageProcessor *image.ImageProcessor
	logger         *utils.Logger

	// 直接的API客户端
	gemini       *geminiClient  // 用于gemini类型
	openaiClient *openai.Client // 用于openai类型，仅支持文生图
}

// NewProvider 创建新的图像生成提供者
func NewProvider(config *Config, logger *utils.Logger) (*Provider, error) {
	// 构建图片预处理配置
	genConfig := &configs.GenImageConfig{
		Type:      config.Type,
		ModelName: config.ModelName,
		BaseURL:   config.BaseURL,
		APIKey:    config.APIKey,
		Security:  config.Security,
	}

	// 创建图片预处理器
	imageProcessor, err := image.NewImageProcessor(genConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("创建图片预处理器失败: %v", err)
	}

	return &Provider{
		config:         config,
		imageProcessor: imageProcessor,
		logger:         logger,
	}, nil
}

// Initialize 初始化Provider
func (p *Provider) Initialize() error {
	switch strings.ToLower(p.config.Type) {
	case "gemini":
		if p.config.APIKey == "" {
			return fmt.Errorf("gemini API key is required")
		}
		p.gemini = newGeminiClient(p.config.APIKey, p.config.BaseURL, p.logger)

	case "openai":
		if p.config.APIKey == "" {
			return fmt.Errorf("OpenAI API key is required")
		}
		clientConfig := openai.DefaultConfig(p.config.APIKey)
		if p.config.BaseURL != "" {
			clientConfig.BaseURL = p.config.BaseURL
		}
		p.openaiClient = openai.NewClientWithConfig(clientConfig)

	default:
		return fmt.Errorf("不支持的生成提供者类型: %s", p.config.Type)
	}

	p.logger.Debug("GenImage Provider初始化成功 %v", map[string]interface{}{
		"type":       p.config.Type,
		"model_name": p.config.ModelName,
	})

	return nil
}

// Cleanup 清理资源
func (p *Provider) Cleanup() error {
	p.logger.Info("GenImage Provider清理完成")
	return nil
}

// GenerateFromText 文生图
func (p *Provider) GenerateFromText(ctx context.Context, prompt string, opts *GenerateOptions) (string, error) {
	if p.openaiClient != nil {
		return p.generateWithOpenAI(ctx, prompt, opts)
	}
	return p.generateImage(ctx, p.config.ModelName, NewTextRequest(prompt), p.imageGenConfig(opts), systemInstruction(opts))
}

// Restyle 整图风格化
func (p *Provider) Restyle(ctx context.Context, imageURI, stylePrompt string) (string, error) {
	if err := p.validateInputs(ctx, imageURI); err != nil {
		return "", err
	}
	instruction := fmt.Sprintf("把这张图片整体转换为%s风格，保持构图和主体不变。", stylePrompt)
	return p.generateImage(ctx, p.config.ModelName, NewEditRequest(imageURI, instruction), p.imageGenConfig(nil), "")
}

// InpaintRemove 蒙版移除：抹掉蒙版白色区域内的内容
func (p *Provider) InpaintRemove(ctx context.Context, imageURI, maskURI string) (string, error) {
	if err := p.validateInputs(ctx, imageURI, maskURI); err != nil {
		return "", err
	}
	instruction := "第一张图是原图，第二张图是蒙版。将蒙版白色区域对应的内容从原图中移除，用周围环境自然填补，蒙版之外的部分保持原样。"
	return p.generateImage(ctx, p.config.ModelName, NewMaskedEditRequest(imageURI, maskURI, instruction), p.imageGenConfig(nil), "")
}

// InpaintStyle 蒙版内局部风格化
func (p *Provider) InpaintStyle(ctx context.Context, imageURI, maskURI, stylePrompt string) (string, error) {
	if err := p.validateInputs(ctx, imageURI, maskURI); err != nil {
		return "", err
	}
	instruction := fmt.Sprintf("第一张图是原图，第二张图是蒙版。只在蒙版白色区域内应用%s效果，其余部分保持原样。", stylePrompt)
	return p.generateImage(ctx, p.config.ModelName, NewMaskedEditRequest(imageURI, maskURI, instruction), p.imageGenConfig(nil), "")
}

// RemoveBackground 抠除背景，保留主体
func (p *Provider) RemoveBackground(ctx context.Context, imageURI string) (string, error) {
	if err := p.validateInputs(ctx, imageURI); err != nil {
		return "", err
	}
	instruction := "移除图片背景，只保留主体，背景填充为纯白色。"
	return p.generateImage(ctx, p.config.ModelName, NewEditRequest(imageURI, instruction), p.imageGenConfig(nil), "")
}

// ReplaceBackground 保留主体并替换背景
func (p *Provider) ReplaceBackground(ctx context.Context, imageURI, bgPrompt string) (string, error) {
	if err := p.validateInputs(ctx, imageURI); err != nil {
		return "", err
	}
	instruction := fmt.Sprintf("保持图片主体不变，将背景替换为：%s。", bgPrompt)
	return p.generateImage(ctx, p.config.ModelName, NewEditRequest(imageURI, instruction), p.imageGenConfig(nil), "")
}

// Upscale 放大增强
// 放大允许使用调用方单独选择的凭据，为其新建独立客户端而不是复用共享客户端
func (p *Provider) Upscale(ctx context.Context, imageURI, apiKey string) (string, error) {
	if err := p.requireGemini("放大"); err != nil {
		return "", err
	}
	if err := p.validateInputs(ctx, imageURI); err != nil {
		return "", err
	}

	client := p.gemini
	if apiKey != "" {
		client = newGeminiClient(apiKey, p.config.BaseURL, p.logger)
	}

	model := p.config.UpscaleModel
	if model == "" {
		model = p.config.ModelName
	}

	instruction := "将这张图片放大并增强细节，保持内容不变，提升清晰度和纹理质量。"
	parts := NewEditRequest(imageURI, instruction)

	resp, err := withRetry(ctx, p.logger, p.config.MaxRetries, func() (*GenerateResponse, error) {
		return client.GenerateContent(ctx, model, parts, p.imageGenConfig(nil), "")
	})
	if err != nil {
		return "", err
	}
	return ParseImageResponse(resp)
}

// MixImages 多图混合
func (p *Provider) MixImages(ctx context.Context, images []LabeledImage, instruction string) (string, error) {
	if len(images) == 0 {
		return "", fmt.Errorf("至少需要一张输入图片")
	}
	uris := make([]string, 0, len(images))
	for _, img := range images {
		uris = append(uris, img.ImageURI)
	}
	if err := p.validateInputs(ctx, uris...); err != nil {
		return "", err
	}
	return p.generateImage(ctx, p.config.ModelName, NewMixRequest(images, instruction), p.imageGenConfig(nil), "")
}

// DetectObjects 物体检测，返回归一化检测框列表
// 远端调用失败会报错，但结果解析失败只降级为空列表
func (p *Provider) DetectObjects(ctx context.Context, imageURI, query string) ([]DetectionBox, error) {
	if err := p.requireGemini("物体检测"); err != nil {
		return nil, err
	}
	if err := p.validateInputs(ctx, imageURI); err != nil {
		return nil, err
	}

	if query == "" {
		query = "所有显著物体"
	}
	instruction := fmt.Sprintf("检测图片中的%s。返回JSON数组，每项包含label和xmin、ymin、xmax、ymax，坐标使用0到1000的归一化值。", query)

	model := p.config.DetectModel
	if model == "" {
		model = p.config.ModelName
	}

	cfg := &generationConfig{
		ResponseMimeType: "application/json",
		ResponseSchema:   detectionSchema,
	}

	resp, err := withRetry(ctx, p.logger, p.config.MaxRetries, func() (*GenerateResponse, error) {
		return p.gemini.GenerateContent(ctx, model, NewEditRequest(imageURI, instruction), cfg, "")
	})
	if err != nil {
		return nil, err
	}

	text := extractText(resp)
	if text == "" {
		p.logger.Warn("检测响应中没有文本内容，降级为空结果")
		return []DetectionBox{}, nil
	}

	return parseDetectionBoxes(text, p.logger), nil
}

// generateImage 编辑类操作的公共路径：限流重试调用后解析出唯一结果图
func (p *Provider) generateImage(ctx context.Context, model string, parts []RequestPart, cfg *generationConfig, sysInstr string) (string, error) {
	if err := p.requireGemini("图片编辑"); err != nil {
		return "", err
	}

	resp, err := withRetry(ctx, p.logger, p.config.MaxRetries, func() (*GenerateResponse, error) {
		return p.gemini.GenerateContent(ctx, model, parts, cfg, sysInstr)
	})
	if err != nil {
		return "", err
	}

	return ParseImageResponse(resp)
}

// generateWithOpenAI openai类型仅支持文生图
func (p *Provider) generateWithOpenAI(ctx context.Context, prompt string, opts *GenerateOptions) (string, error) {
	request := openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.config.ModelName,
		N:              1,
		Size:           openaiImageSize(opts),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	resp, err := withRetry(ctx, p.logger, p.config.MaxRetries, func() (openai.ImageResponse, error) {
		return p.openaiClient.CreateImage(ctx, request)
	})
	if err != nil {
		return "", err
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", fmt.Errorf("响应中没有图片数据")
	}

	return "data:image/png;base64," + resp.Data[0].B64JSON, nil
}

// validateInputs 对所有输入图片做安全验证，任何一张不合法直接失败
func (p *Provider) validateInputs(ctx context.Context, uris ...string) error {
	for i, uri := range uris {
		if _, err := p.imageProcessor.ProcessDataURI(ctx, uri); err != nil {
			return fmt.Errorf("第%d张输入图片无效: %v", i+1, err)
		}
	}
	return nil
}

// requireGemini 不支持openai类型的操作统一在这里拦截
func (p *Provider) requireGemini(operation string) error {
	if p.gemini == nil {
		return fmt.Errorf("%s操作需要gemini类型的提供者，当前类型: %s", operation, p.config.Type)
	}
	return nil
}

// imageGenConfig 图片输出的生成配置
func (p *Provider) imageGenConfig(opts *GenerateOptions) *generationConfig {
	cfg := &generationConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if opts != nil && opts.AspectRatio != "" {
		cfg.ImageConfig = &imageConfig{AspectRatio: opts.AspectRatio}
	}
	return cfg
}

func systemInstruction(opts *GenerateOptions) string {
	if opts == nil {
		return ""
	}
	return opts.Instructions
}

// openaiImageSize 宽高比到openai尺寸参数的近似映射
func openaiImageSize(opts *GenerateOptions) string {
	if opts == nil {
		return openai.CreateImageSize1024x1024
	}
	switch opts.AspectRatio {
	case "16:9", "4:3":
		return openai.CreateImageSize1792x1024
	case "9:16", "3:4":
		return openai.CreateImageSize1024x1792
	default:
		return openai.CreateImageSize1024x1024
	}
}

// GetImageMetrics 获取图片预处理统计信息
func (p *Provider) GetImageMetrics() image.ImageMetrics {
	return p.imageProcessor.GetMetrics()
}

// GetConfig 获取配置信息
func (p *Provider) GetConfig() *Config {
	return p.config
}
