package configs

import (
	"os"

	"gopkg.in/yaml.v3"
)

// TokenConfig Token配置
type TokenConfig struct {
	Token string `yaml:"token"`
}

// Config 主配置结构
type Config struct {
	Server struct {
		IP    string `yaml:"ip"`
		Port  int    `yaml:"port"`
		Token string `yaml:"token"`
		Auth  struct {
			Enabled bool          `yaml:"enabled"`
			Tokens  []TokenConfig `yaml:"tokens"`
		} `yaml:"auth"`
	} `yaml:"server"`

	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	Web struct {
		Enabled   bool   `yaml:"enabled"`
		Port      int    `yaml:"port"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"web"`

	// 编辑历史相关配置
	History struct {
		Enabled  bool   `yaml:"enabled"`
		ThumbDir string `yaml:"thumb_dir"`
		ThumbMax int    `yaml:"thumb_max"` // 缩略图最长边像素
	} `yaml:"history"`

	SelectedModule map[string]string `yaml:"selected_module"`

	GenImage map[string]GenImageConfig `yaml:"GenImage"`

	Task TaskConfig `yaml:"task"`
}

// SecurityConfig 图片安全配置结构
type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`   // 最大文件大小（字节）
	MaxPixels      int64    `yaml:"max_pixels"`      // 最大像素数量
	MaxWidth       int      `yaml:"max_width"`       // 最大宽度
	MaxHeight      int      `yaml:"max_height"`      // 最大高度
	AllowedFormats []string `yaml:"allowed_formats"` // 允许的图片格式
	EnableDeepScan bool     `yaml:"enable_deep_scan"`
}

// GenImageConfig 图像生成模型配置结构
type GenImageConfig struct {
	Type         string                 `yaml:"type"`          // API类型：gemini / openai
	ModelName    string                 `yaml:"model_name"`    // 生成编辑模型
	DetectModel  string                 `yaml:"detect_model"`  // 物体检测模型（可选，默认同 model_name）
	UpscaleModel string                 `yaml:"upscale_model"` // 放大模型（可选）
	BaseURL      string                 `yaml:"url"`           // API地址
	APIKey       string                 `yaml:"api_key"`       // API密钥
	MaxRetries   int                    `yaml:"max_retries"`   // 限流重试次数，0使用默认值
	Security     SecurityConfig         `yaml:"security"`      // 图片安全配置
	Extra        map[string]interface{} `yaml:",inline"`       // 额外配置
}

// TaskConfig 异步任务配置结构
type TaskConfig struct {
	MaxWorkers        int `yaml:"max_workers"`
	MaxTasksPerClient int `yaml:"max_tasks_per_client"`
}

// LoadConfig 从文件加载配置
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, path, err
	}

	// API key 允许从环境变量注入，避免写进配置文件
	for name, gc := range config.GenImage {
		if gc.APIKey == "" {
			if key := os.Getenv("GENIMAGE_API_KEY"); key != "" {
				gc.APIKey = key
				config.GenImage[name] = gc
			}
		}
	}

	return config, path, nil
}
