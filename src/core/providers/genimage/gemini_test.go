package genimage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBuildWireParts(t *testing.T) {
	parts := NewMaskedEditRequest(
		"data:image/jpeg;base64,AAAA",
		"data:image/png;base64,BBBB",
		"去除蒙版区域",
	)
	wire := buildWireParts(parts)

	if len(wire) != 3 {
		t.Fatalf("期望3个线上分段，得到%d个", len(wire))
	}
	if wire[0].InlineData == nil || wire[0].InlineData.MimeType != "image/jpeg" || wire[0].InlineData.Data != "AAAA" {
		t.Errorf("分段0 = %+v", wire[0])
	}
	if wire[1].InlineData == nil || wire[1].InlineData.Data != "BBBB" {
		t.Errorf("分段1 = %+v", wire[1])
	}
	if wire[2].Text != "去除蒙版区域" {
		t.Errorf("分段2 = %+v", wire[2])
	}
}

func TestGenerateContent(t *testing.T) {
	logger := newTestLogger(t)

	t.Run("成功请求", func(t *testing.T) {
		var gotPath, gotAPIKey string
		var gotRequest generateRequest

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAPIKey = r.Header.Get("x-goog-api-key")
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &gotRequest)

			json.NewEncoder(w).Encode(GenerateResponse{
				Candidates: []Candidate{{Content: &Content{Parts: []ResponsePart{
					{InlineData: &InlineData{MimeType: "image/png", Data: "RESULT"}},
				}}}},
			})
		}))
		defer server.Close()

		client := newGeminiClient("test-key", server.URL, logger)
		parts := NewEditRequest("data:image/png;base64,AAAA", "变成油画风格")
		resp, err := client.GenerateContent(context.Background(), "test-model", parts, &generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		}, "")
		if err != nil {
			t.Fatalf("调用失败: %v", err)
		}

		if gotPath != "/models/test-model:generateContent" {
			t.Errorf("请求路径 = %q", gotPath)
		}
		if gotAPIKey != "test-key" {
			t.Errorf("api key头 = %q", gotAPIKey)
		}
		if len(gotRequest.Contents) != 1 || len(gotRequest.Contents[0].Parts) != 2 {
			t.Fatalf("请求内容 = %+v", gotRequest.Contents)
		}
		// 图片在前，指令在后
		if gotRequest.Contents[0].Parts[0].InlineData == nil {
			t.Errorf("第一段应为图片")
		}
		if gotRequest.Contents[0].Parts[1].Text != "变成油画风格" {
			t.Errorf("第二段应为指令文本，得到 %+v", gotRequest.Contents[0].Parts[1])
		}

		uri, err := ParseImageResponse(resp)
		if err != nil {
			t.Fatalf("解析响应失败: %v", err)
		}
		if uri != "data:image/png;base64,RESULT" {
			t.Errorf("结果 = %q", uri)
		}
	})

	t.Run("系统指令单独成段", func(t *testing.T) {
		var gotRequest generateRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &gotRequest)
			json.NewEncoder(w).Encode(GenerateResponse{})
		}))
		defer server.Close()

		client := newGeminiClient("test-key", server.URL, logger)
		client.GenerateContent(context.Background(), "m", NewTextRequest("画一只猫"), nil, "输出要适合儿童观看")

		if gotRequest.SystemInstruction == nil {
			t.Fatalf("系统指令未下发")
		}
		if gotRequest.SystemInstruction.Parts[0].Text != "输出要适合儿童观看" {
			t.Errorf("系统指令 = %+v", gotRequest.SystemInstruction)
		}
	})

	t.Run("结构化错误按APIError返回", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
		}))
		defer server.Close()

		client := newGeminiClient("test-key", server.URL, logger)
		_, err := client.GenerateContent(context.Background(), "m", NewTextRequest("x"), nil, "")
		if err == nil {
			t.Fatalf("期望错误，得到成功")
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("错误类型应为APIError，得到: %T", err)
		}
		if apiErr.StatusCode != 429 || apiErr.Status != "RESOURCE_EXHAUSTED" {
			t.Errorf("APIError = %+v", apiErr)
		}
		if !isTransientError(err) {
			t.Errorf("429错误应被判定为瞬时错误")
		}
	})

	t.Run("非JSON错误体截断后放入消息", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream gateway error"))
		}))
		defer server.Close()

		client := newGeminiClient("test-key", server.URL, logger)
		_, err := client.GenerateContent(context.Background(), "m", NewTextRequest("x"), nil, "")

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("错误类型应为APIError，得到: %T", err)
		}
		if apiErr.StatusCode != 502 {
			t.Errorf("StatusCode = %d, want 502", apiErr.StatusCode)
		}
		if apiErr.Message != "upstream gateway error" {
			t.Errorf("Message = %q", apiErr.Message)
		}
	})
}
