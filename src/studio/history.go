package studio

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"imagestudio-server-go/src/models"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 50

// handleHistory 查询当前客户端的编辑历史，按时间倒序
func (s *DefaultStudioService) handleHistory(c *gin.Context) {
	s.addCORSHeaders(c)

	clientID, err := s.verifyAuth(c)
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err.Error())
		return
	}

	if !s.config.History.Enabled || s.db == nil {
		c.JSON(http.StatusOK, HistoryResponse{Success: true, Items: []HistoryItem{}})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	query := s.db.Where("client_id = ?", clientID)
	if op := c.Query("operation"); op != "" {
		query = query.Where("operation = ?", op)
	}

	var records []models.EditRecord
	if err := query.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		s.logger.Warn(fmt.Sprintf("查询编辑历史失败 client=%s: %v", clientID, err))
		s.respondError(c, http.StatusInternalServerError, "查询编辑历史失败")
		return
	}

	items := make([]HistoryItem, 0, len(records))
	for _, r := range records {
		item := HistoryItem{
			ID:        r.ID,
			Operation: r.Operation,
			Prompt:    r.Prompt,
			Success:   r.Success,
			Message:   r.Message,
			CreatedAt: r.CreatedAt,
		}
		if r.ThumbPath != "" {
			item.ThumbURL = "/thumbs/" + filepath.Base(r.ThumbPath)
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, HistoryResponse{Success: true, Items: items})
}
