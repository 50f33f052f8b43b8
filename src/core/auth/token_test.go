package auth

import (
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	at := NewAuthToken("test-secret")

	token, err := at.GenerateToken("client-123")
	if err != nil {
		t.Fatalf("签发token失败: %v", err)
	}

	isValid, clientID, err := at.VerifyToken(token)
	if err != nil {
		t.Fatalf("校验token失败: %v", err)
	}
	if !isValid {
		t.Errorf("token应有效")
	}
	if clientID != "client-123" {
		t.Errorf("client_id = %q, want %q", clientID, "client-123")
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	at := NewAuthToken("secret-a")
	other := NewAuthToken("secret-b")

	token, err := at.GenerateToken("client-123")
	if err != nil {
		t.Fatalf("签发token失败: %v", err)
	}

	isValid, _, err := other.VerifyToken(token)
	if err == nil || isValid {
		t.Errorf("密钥不匹配的token不应通过校验")
	}
}

func TestVerifyToken_Garbage(t *testing.T) {
	at := NewAuthToken("test-secret")

	isValid, _, err := at.VerifyToken("not-a-jwt")
	if err == nil || isValid {
		t.Errorf("非法token不应通过校验")
	}
}
