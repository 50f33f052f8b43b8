package models

import (
	"time"

	"gorm.io/datatypes"
)

// 系统全局配置（只保存一条记录）
type SystemConfig struct {
	ID               uint `gorm:"primaryKey"`
	SelectedGenImage string
	DefaultAspect    string // 默认宽高比，如 "1:1"
	KeepHistory      bool
}

// 用户
type User struct {
	ID       uint   `gorm:"primaryKey"`
	Username string `gorm:"uniqueIndex;not null"`
	Password string // 建议加密
	Role     string // 可选值：admin/user
	Level    string // basic/premium/business，决定任务配额
	Setting  UserSetting
}

// 用户设置
type UserSetting struct {
	ID               uint `gorm:"primaryKey"`
	UserID           uint `gorm:"uniqueIndex"` // 一对一
	SelectedGenImage string
	DefaultAspect    string
	FavoriteStyles   datatypes.JSON // 存储为 JSON 数组
}

// EditRecord 一次编辑操作的历史记录，供画廊展示
type EditRecord struct {
	ID         uint   `gorm:"primaryKey"`
	ClientID   string `gorm:"index"`
	Operation  string `gorm:"index"` // generate/restyle/inpaint/background/mix/upscale/detect
	Prompt     string `gorm:"type:text"`
	Success    bool
	Message    string // 失败时的用户可见信息
	ThumbPath  string // 结果缩略图路径，失败时为空
	DurationMs int64
	CreatedAt  time.Time
}
