package genimage

import (
	"fmt"

	"imagestudio-server-go/src/configs"
	"imagestudio-server-go/src/core/utils"
)

// Create 根据配置创建并初始化生成提供者实例
func Create(name string, genConfig *configs.GenImageConfig, logger *utils.Logger) (*Provider, error) {
	// 转换配置格式
	config := &Config{
		Type:         genConfig.Type,
		ModelName:    genConfig.ModelName,
		DetectModel:  genConfig.DetectModel,
		UpscaleModel: genConfig.UpscaleModel,
		BaseURL:      genConfig.BaseURL,
		APIKey:       genConfig.APIKey,
		MaxRetries:   genConfig.MaxRetries,
		Security:     genConfig.Security,
		Data:         genConfig.Extra,
	}

	provider, err := NewProvider(config, logger)
	if err != nil {
		return nil, fmt.Errorf("创建生成提供者失败: %v", err)
	}

	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("初始化生成提供者失败: %v", err)
	}

	logger.Debug("生成提供者创建成功 %v", map[string]interface{}{
		"name":       name,
		"type":       config.Type,
		"model_name": config.ModelName,
	})

	return provider, nil
}
