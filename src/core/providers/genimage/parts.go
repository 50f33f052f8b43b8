package genimage

import (
	"regexp"
)

// ImagePart 发送给生成API的图片段
type ImagePart struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64载荷，构建过程中只剥前缀，不改动字节
}

// RequestPart 请求内容段，图片或文本二选一
// 段的顺序就是模型理解"第一张图/第二张图"的依据，组装后不允许重排
type RequestPart struct {
	Text  string     `json:"text,omitempty"`
	Image *ImagePart `json:"image,omitempty"`
}

// LabeledImage 多图混合时的一张图及其可选标注
type LabeledImage struct {
	ImageURI string // data URI
	Label    string // 为空时不生成标注段
}

// 只识别这四种扩展名的data URI前缀
var imagePartPattern = regexp.MustCompile(`^data:image/(png|jpeg|jpg|webp);base64,`)

// BuildImagePart 把data URI转成图片段
// 前缀无法识别时原样透传并按png处理，这一步永远不报错
func BuildImagePart(dataURI string) ImagePart {
	if m := imagePartPattern.FindStringSubmatch(dataURI); m != nil {
		return ImagePart{
			MimeType: "image/" + m[1],
			Data:     dataURI[len(m[0]):],
		}
	}

	return ImagePart{
		MimeType: "image/png",
		Data:     dataURI,
	}
}

func imagePart(dataURI string) RequestPart {
	part := BuildImagePart(dataURI)
	return RequestPart{Image: &part}
}

func textPart(text string) RequestPart {
	return RequestPart{Text: text}
}

// NewTextRequest 纯文本生成请求
func NewTextRequest(instruction string) []RequestPart {
	return []RequestPart{textPart(instruction)}
}

// NewEditRequest 单图编辑请求：[原图, 指令]
func NewEditRequest(sourceURI, instruction string) []RequestPart {
	return []RequestPart{
		imagePart(sourceURI),
		textPart(instruction),
	}
}

// NewMaskedEditRequest 蒙版编辑请求：[原图, 蒙版, 指令]
func NewMaskedEditRequest(sourceURI, maskURI, instruction string) []RequestPart {
	return []RequestPart{
		imagePart(sourceURI),
		imagePart(maskURI),
		textPart(instruction),
	}
}

// NewCompositeRequest 合成请求：[前景图, 背景图, 指令]
func NewCompositeRequest(fgURI, bgURI, instruction string) []RequestPart {
	return []RequestPart{
		imagePart(fgURI),
		imagePart(bgURI),
		textPart(instruction),
	}
}

// NewMixRequest 多图混合请求
// 每张带标注的图后面紧跟其标注文本段，最后追加总指令
func NewMixRequest(images []LabeledImage, instruction string) []RequestPart {
	parts := make([]RequestPart, 0, len(images)*2+1)
	for _, img := range images {
		parts = append(parts, imagePart(img.ImageURI))
		if img.Label != "" {
			parts = append(parts, textPart(img.Label))
		}
	}
	parts = append(parts, textPart(instruction))
	return parts
}
