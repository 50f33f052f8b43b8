package genimage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"imagestudio-server-go/src/configs"
)

// newTestProvider 构建一个指向测试服务器的gemini类型提供者
func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	p, err := NewProvider(&Config{
		Type:         "gemini",
		ModelName:    "edit-model",
		UpscaleModel: "upscale-model",
		BaseURL:      baseURL,
		APIKey:       "shared-key",
		MaxRetries:   1,
		Security: configs.SecurityConfig{
			MaxFileSize:    1024 * 1024,
			MaxPixels:      1000 * 1000,
			MaxWidth:       1000,
			MaxHeight:      1000,
			AllowedFormats: []string{"jpeg", "jpg", "png", "webp"},
			EnableDeepScan: true,
		},
	}, newTestLogger(t))
	if err != nil {
		t.Fatalf("创建提供者失败: %v", err)
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("初始化提供者失败: %v", err)
	}
	return p
}

// testPNGDataURI 生成一张能通过安全验证的小PNG
func testPNGDataURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 120, G: 180, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("编码PNG失败: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func imageResponse(data string) GenerateResponse {
	return GenerateResponse{
		Candidates: []Candidate{{Content: &Content{Parts: []ResponsePart{
			{InlineData: &InlineData{MimeType: "image/png", Data: data}},
		}}}},
	}
}

func textResponse(text string) GenerateResponse {
	return GenerateResponse{
		Candidates: []Candidate{{Content: &Content{Parts: []ResponsePart{
			{Text: text},
		}}}},
	}
}

func TestUpscale_CallerCredential(t *testing.T) {
	var gotPath, gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("x-goog-api-key")
		json.NewEncoder(w).Encode(imageResponse("UPSCALED"))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	imgURI := testPNGDataURI(t)

	t.Run("调用方密钥随请求下发", func(t *testing.T) {
		uri, err := p.Upscale(context.Background(), imgURI, "caller-key")
		if err != nil {
			t.Fatalf("放大失败: %v", err)
		}
		if gotAPIKey != "caller-key" {
			t.Errorf("api key头 = %q, want %q", gotAPIKey, "caller-key")
		}
		if gotPath != "/models/upscale-model:generateContent" {
			t.Errorf("请求路径 = %q", gotPath)
		}
		if uri != "data:image/png;base64,UPSCALED" {
			t.Errorf("结果 = %q", uri)
		}
	})

	t.Run("未指定密钥时回退到共享密钥", func(t *testing.T) {
		if _, err := p.Upscale(context.Background(), imgURI, ""); err != nil {
			t.Fatalf("放大失败: %v", err)
		}
		if gotAPIKey != "shared-key" {
			t.Errorf("api key头 = %q, want %q", gotAPIKey, "shared-key")
		}
	})
}

func TestDetectObjects_Degrade(t *testing.T) {
	responseText := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(textResponse(responseText))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	imgURI := testPNGDataURI(t)

	t.Run("无法解析的模型输出降级为空列表", func(t *testing.T) {
		responseText = "sorry, no json here {broken"
		boxes, err := p.DetectObjects(context.Background(), imgURI, "猫")
		if err != nil {
			t.Fatalf("检测失败: %v", err)
		}
		if boxes == nil {
			t.Fatalf("降级结果应为空列表而不是nil")
		}
		if len(boxes) != 0 {
			t.Errorf("检测框数量 = %d, want 0", len(boxes))
		}
	})

	t.Run("正常JSON输出被解析", func(t *testing.T) {
		responseText = `[{"label":"猫","xmin":10,"ymin":20,"xmax":500,"ymax":600}]`
		boxes, err := p.DetectObjects(context.Background(), imgURI, "猫")
		if err != nil {
			t.Fatalf("检测失败: %v", err)
		}
		if len(boxes) != 1 || boxes[0].Label != "猫" {
			t.Errorf("检测框 = %+v", boxes)
		}
	})
}
