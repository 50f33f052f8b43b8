package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// SaveThumbnail 为编辑结果生成缩略图并落盘，返回文件路径
// 只服务于历史画廊展示，maxEdge为缩略图最长边像素
func SaveThumbnail(dataURI string, thumbDir string, maxEdge int) (string, error) {
	if maxEdge <= 0 {
		maxEdge = 256
	}

	imageData, err := FromDataURI(dataURI)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(imageData.Data)
	if err != nil {
		return "", fmt.Errorf("base64解码失败: %v", err)
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("解码结果图片失败: %v", err)
	}

	// 等比缩放到最长边maxEdge
	thumb := imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)

	if err := os.MkdirAll(thumbDir, 0755); err != nil {
		return "", fmt.Errorf("创建缩略图目录失败: %v", err)
	}

	filename := fmt.Sprintf("thumb_%d_%s.png", time.Now().Unix(), uuid.New().String()[:8])
	path := filepath.Join(thumbDir, filename)
	if err := imaging.Save(thumb, path); err != nil {
		return "", fmt.Errorf("保存缩略图失败: %v", err)
	}

	return path, nil
}
