package genimage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"imagestudio-server-go/src/core/utils"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiClient 多模态生成API的HTTP客户端
// 每次操作独立发起请求，不在调用间保持连接或会话状态
type geminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *utils.Logger
}

func newGeminiClient(apiKey, baseURL string, logger *utils.Logger) *geminiClient {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &geminiClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

// generateRequest generateContent请求结构
type generateRequest struct {
	Contents          []wireContent     `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *wireContent      `json:"systemInstruction,omitempty"`
}

// wireContent 请求内容，分段有序
type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

// wirePart 请求内容段
type wirePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// generationConfig 生成配置
type generationConfig struct {
	ResponseModalities []string               `json:"responseModalities,omitempty"`
	ResponseMimeType   string                 `json:"responseMimeType,omitempty"`
	ResponseSchema     map[string]interface{} `json:"responseSchema,omitempty"`
	ImageConfig        *imageConfig           `json:"imageConfig,omitempty"`
}

// imageConfig 图片输出配置
type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// apiErrorEnvelope 非2xx响应体的错误包装
type apiErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// buildWireParts 把请求段转换成线上格式，保持原有顺序
func buildWireParts(parts []RequestPart) []wirePart {
	wire := make([]wirePart, 0, len(parts))
	for _, part := range parts {
		if part.Image != nil {
			wire = append(wire, wirePart{InlineData: &InlineData{
				MimeType: part.Image.MimeType,
				Data:     part.Image.Data,
			}})
		} else {
			wire = append(wire, wirePart{Text: part.Text})
		}
	}
	return wire
}

// GenerateContent 调用一次generateContent接口
func (c *geminiClient) GenerateContent(ctx context.Context, model string, parts []RequestPart, cfg *generationConfig, systemInstruction string) (*GenerateResponse, error) {
	request := generateRequest{
		Contents: []wireContent{
			{Role: "user", Parts: buildWireParts(parts)},
		},
		GenerationConfig: cfg,
	}
	if systemInstruction != "" {
		request.SystemInstruction = &wireContent{
			Parts: []wirePart{{Text: systemInstruction}},
		}
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("请求序列化失败: %v", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	c.logger.Debug("调用生成API %v", map[string]interface{}{
		"model":      model,
		"part_count": len(parts),
		"body_size":  len(requestBody),
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("生成API调用失败: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.decodeAPIError(resp.StatusCode, body)
	}

	var result GenerateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %v", err)
	}

	return &result, nil
}

// decodeAPIError 把非2xx响应体转换成结构化错误，供重试分类使用
func (c *geminiClient) decodeAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Code != 0 {
			apiErr.StatusCode = envelope.Error.Code
		}
		apiErr.Status = envelope.Error.Status
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = truncateText(string(body), 200)
	}

	c.logger.Warn("生成API返回错误", map[string]interface{}{
		"status_code": apiErr.StatusCode,
		"status":      apiErr.Status,
		"message":     apiErr.Message,
	})

	return apiErr
}
