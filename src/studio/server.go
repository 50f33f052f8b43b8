package studio

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"imagestudio-server-go/src/configs"
	"imagestudio-server-go/src/core/auth"
	"imagestudio-server-go/src/core/image"
	"imagestudio-server-go/src/core/providers/genimage"
	"imagestudio-server-go/src/core/utils"
	"imagestudio-server-go/src/models"
	"imagestudio-server-go/src/task"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DefaultStudioService 图像工作台HTTP服务
type DefaultStudioService struct {
	logger      *utils.Logger
	config      *configs.Config
	providerMap map[string]*genimage.Provider // 支持多个生成provider
	authToken   *auth.AuthToken               // 认证工具
	db          *gorm.DB                      // 历史记录存储，可为nil
	taskManager *task.TaskManager             // 异步任务队列
	hub         *notifyHub                    // WebSocket推送
	jobs        *jobRegistry                  // 异步任务状态注册表
}

// NewDefaultStudioService 构造函数
func NewDefaultStudioService(config *configs.Config, logger *utils.Logger, db *gorm.DB) (*DefaultStudioService, error) {
	service := &DefaultStudioService{
		logger:      logger,
		config:      config,
		providerMap: make(map[string]*genimage.Provider),
		db:          db,
		hub:         newNotifyHub(logger),
		jobs:        newJobRegistry(),
	}

	service.authToken = auth.NewAuthToken(config.Server.Token)

	if err := service.initProviders(); err != nil {
		return nil, fmt.Errorf("初始化生成providers失败: %v", err)
	}

	service.initTaskManager()
	return service, nil
}

// initProviders 初始化图像生成providers
func (s *DefaultStudioService) initProviders() error {
	selected := s.config.SelectedModule["GenImage"]
	if selected == "" {
		s.logger.Warn("请设置好GenImage provider配置")
		return fmt.Errorf("请设置好GenImage provider配置")
	}

	genConfig, ok := s.config.GenImage[selected]
	if !ok {
		return fmt.Errorf("GenImage配置 %s 不存在", selected)
	}

	provider, err := genimage.Create(selected, &genConfig, s.logger)
	if err != nil {
		s.logger.Error(fmt.Sprintf("创建GenImage provider %s 失败: %v", selected, err))
		return err
	}

	s.providerMap[selected] = provider
	s.logger.Info(fmt.Sprintf("GenImage provider %s 初始化成功", selected))
	return nil
}

// initTaskManager 初始化异步任务队列并注册执行器
func (s *DefaultStudioService) initTaskManager() {
	maxWorkers := s.config.Task.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	s.taskManager = task.NewTaskManager(task.ResourceConfig{
		MaxWorkers:        maxWorkers,
		MaxTasksPerClient: s.config.Task.MaxTasksPerClient,
	})

	executor := func(t *task.Task) error {
		params, ok := t.Params.(*jobParams)
		if !ok {
			return fmt.Errorf("任务参数类型错误: %T", t.Params)
		}
		result, _, err := s.dispatch(t.Context, params.Op, params.Request)
		if err != nil {
			return err
		}
		t.Result = result
		return nil
	}
	task.RegisterTaskExecutor(task.TaskTypeImageGen, executor)
	task.RegisterTaskExecutor(task.TaskTypeImageEdit, executor)

	s.taskManager.Start()
}

// Start 实现 StudioService 接口，注册所有工作台路由
func (s *DefaultStudioService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/studio", s.handleStatus)
	apiGroup.OPTIONS("/studio", s.handleOptions)

	for _, op := range []string{"generate", "restyle", "inpaint", "background", "mix", "upscale", "detect"} {
		path := "/studio/" + op
		apiGroup.POST(path, s.operationHandler(op))
		apiGroup.OPTIONS(path, s.handleOptions)
	}

	apiGroup.POST("/studio/jobs", s.handleSubmitJob)
	apiGroup.OPTIONS("/studio/jobs", s.handleOptions)
	apiGroup.GET("/studio/jobs/:id", s.handleJobStatus)
	apiGroup.GET("/studio/history", s.handleHistory)
	apiGroup.OPTIONS("/studio/history", s.handleOptions)
	apiGroup.GET("/studio/notify", s.handleNotify)

	// 静态资源：前端页面与历史缩略图
	if s.config.Web.Enabled && s.config.Web.StaticDir != "" {
		engine.Static("/web", s.config.Web.StaticDir)
	}
	if s.config.History.Enabled && s.config.History.ThumbDir != "" {
		engine.Static("/thumbs", s.config.History.ThumbDir)
	}

	s.logger.Info("Studio HTTP服务路由注册完成")
	return nil
}

// handleOptions 处理OPTIONS请求（CORS）
func (s *DefaultStudioService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusOK)
}

// handleStatus 处理GET请求（状态检查）
func (s *DefaultStudioService) handleStatus(c *gin.Context) {
	s.addCORSHeaders(c)

	var message string
	if len(s.providerMap) > 0 {
		message = fmt.Sprintf("Studio 接口运行正常，共有 %d 个可用的图像生成模型", len(s.providerMap))
	} else {
		message = "Studio 接口运行不正常，没有可用的GenImage provider"
	}
	c.String(http.StatusOK, message)
}

// operationHandler 返回指定编辑操作的同步处理函数
func (s *DefaultStudioService) operationHandler(op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.addCORSHeaders(c)

		clientID, err := s.verifyAuth(c)
		if err != nil {
			s.respondError(c, http.StatusUnauthorized, err.Error())
			s.logger.Warn(fmt.Sprintf("studio 认证失败: %v", err))
			return
		}

		var req OperationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, http.StatusBadRequest, fmt.Sprintf("请求体解析失败: %v", err))
			return
		}

		s.logger.Debug("收到Studio %s 请求 client=%s", op, clientID)

		started := time.Now()
		resp, prompt, err := s.dispatch(c.Request.Context(), op, &req)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("Studio %s 处理失败: %v", op, err))
			s.recordHistory(clientID, op, prompt, "", err, started)
			s.respondError(c, http.StatusInternalServerError, err.Error())
			return
		}

		s.recordHistory(clientID, op, prompt, resp.Image, nil, started)
		s.logger.Info("Studio %s 完成 client=%s 耗时=%dms", op, clientID, time.Since(started).Milliseconds())
		c.JSON(http.StatusOK, resp)
	}
}

// dispatch 根据操作名调用对应的provider能力
func (s *DefaultStudioService) dispatch(ctx context.Context, op string, req *OperationRequest) (*StudioResponse, string, error) {
	provider := s.selectProvider("")
	if provider == nil {
		return nil, "", fmt.Errorf("没有可用的图像生成模型")
	}

	opts := &genimage.GenerateOptions{
		AspectRatio:  req.AspectRatio,
		Instructions: req.Instructions,
	}

	var (
		resultURI string
		prompt    string
		err       error
	)

	switch op {
	case "generate":
		if req.Prompt == "" {
			return nil, "", fmt.Errorf("缺少prompt字段")
		}
		prompt = req.Prompt
		resultURI, err = provider.GenerateFromText(ctx, req.Prompt, opts)
	case "restyle":
		if req.Image == "" || req.Style == "" {
			return nil, "", fmt.Errorf("缺少image或style字段")
		}
		prompt = req.Style
		resultURI, err = provider.Restyle(ctx, req.Image, req.Style)
	case "inpaint":
		if req.Image == "" || req.Mask == "" {
			return nil, "", fmt.Errorf("缺少image或mask字段")
		}
		if req.Style == "" {
			prompt = "去除蒙版区域"
			resultURI, err = provider.InpaintRemove(ctx, req.Image, req.Mask)
		} else {
			prompt = req.Style
			resultURI, err = provider.InpaintStyle(ctx, req.Image, req.Mask, req.Style)
		}
	case "background":
		if req.Image == "" {
			return nil, "", fmt.Errorf("缺少image字段")
		}
		if req.Prompt == "" {
			prompt = "去除背景"
			resultURI, err = provider.RemoveBackground(ctx, req.Image)
		} else {
			prompt = req.Prompt
			resultURI, err = provider.ReplaceBackground(ctx, req.Image, req.Prompt)
		}
	case "mix":
		if len(req.Images) == 0 || req.Instruction == "" {
			return nil, "", fmt.Errorf("缺少images或instruction字段")
		}
		labeled := make([]genimage.LabeledImage, 0, len(req.Images))
		for _, img := range req.Images {
			labeled = append(labeled, genimage.LabeledImage{ImageURI: img.Image, Label: img.Label})
		}
		prompt = req.Instruction
		resultURI, err = provider.MixImages(ctx, labeled, req.Instruction)
	case "upscale":
		if req.Image == "" {
			return nil, "", fmt.Errorf("缺少image字段")
		}
		prompt = "高清放大"
		resultURI, err = provider.Upscale(ctx, req.Image, req.APIKey)
	case "detect":
		if req.Image == "" || req.Query == "" {
			return nil, "", fmt.Errorf("缺少image或query字段")
		}
		prompt = req.Query
		boxes, derr := provider.DetectObjects(ctx, req.Image, req.Query)
		if derr != nil {
			return nil, prompt, derr
		}
		return &StudioResponse{Success: true, Boxes: boxes}, prompt, nil
	default:
		return nil, "", fmt.Errorf("不支持的操作: %s", op)
	}

	if err != nil {
		return nil, prompt, err
	}
	return &StudioResponse{Success: true, Image: resultURI}, prompt, nil
}

// handleSubmitJob 处理异步任务提交
func (s *DefaultStudioService) handleSubmitJob(c *gin.Context) {
	s.addCORSHeaders(c)

	clientID, err := s.verifyAuth(c)
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err.Error())
		return
	}

	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, fmt.Sprintf("请求体解析失败: %v", err))
		return
	}

	taskType, err := taskTypeFor(req.Op)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	// 任务的生命周期超出本次HTTP请求，不能复用请求context
	opReq := req.OperationRequest
	t, jobID := task.NewTask(context.Background(), taskType, &jobParams{
		Op:      req.Op,
		Request: &opReq,
	})
	t.ScheduledTime = req.ScheduledTime
	submitted := time.Now()
	t.Callback = task.NewFuncCallback(
		func(result interface{}) { s.finishJob(clientID, jobID, req.Op, submitted, result) },
		func(err error) { s.failJob(clientID, jobID, req.Op, submitted, err) },
	)

	// 先登记再提交，避免执行太快时回调先于登记到达
	s.jobs.add(jobID, clientID, req.Op)

	if err := s.taskManager.SubmitTask(clientID, t); err != nil {
		s.jobs.remove(jobID)
		s.logger.Warn(fmt.Sprintf("任务提交失败 client=%s: %v", clientID, err))
		c.JSON(http.StatusTooManyRequests, JobSubmitResponse{Success: false, Message: err.Error()})
		return
	}

	s.logger.Info("任务已提交 client=%s job=%s op=%s", clientID, jobID, req.Op)
	c.JSON(http.StatusOK, JobSubmitResponse{Success: true, JobID: jobID})
}

// jobParams 异步任务参数
type jobParams struct {
	Op      string
	Request *OperationRequest
}

// finishJob 任务成功后更新登记、通过WebSocket推送结果并记录历史
func (s *DefaultStudioService) finishJob(clientID, jobID, op string, submitted time.Time, result interface{}) {
	notification := JobNotification{
		Type:    "job",
		JobID:   jobID,
		Op:      op,
		Success: true,
	}
	resp, _ := result.(*StudioResponse)
	if resp != nil {
		notification.Image = resp.Image
	}
	s.jobs.complete(jobID, resp)
	s.hub.Push(clientID, notification)
	s.recordHistory(clientID, op, "", notification.Image, nil, submitted)
}

// failJob 任务失败后的对应处理
func (s *DefaultStudioService) failJob(clientID, jobID, op string, submitted time.Time, err error) {
	s.jobs.fail(jobID, err.Error())
	s.hub.Push(clientID, JobNotification{
		Type:    "job",
		JobID:   jobID,
		Op:      op,
		Success: false,
		Message: err.Error(),
	})
	s.recordHistory(clientID, op, "", "", err, submitted)
}

// taskTypeFor 将操作名映射到任务类型，detect只支持同步调用
func taskTypeFor(op string) (task.TaskType, error) {
	switch op {
	case "generate":
		return task.TaskTypeImageGen, nil
	case "restyle", "inpaint", "background", "mix", "upscale":
		return task.TaskTypeImageEdit, nil
	case "detect":
		return "", fmt.Errorf("detect 操作仅支持同步调用")
	default:
		return "", fmt.Errorf("不支持的操作: %s", op)
	}
}

// verifyAuth 验证认证并返回客户端ID
func (s *DefaultStudioService) verifyAuth(c *gin.Context) (string, error) {
	if !s.config.Server.Auth.Enabled {
		clientID := c.GetHeader("Client-Id")
		if clientID == "" {
			clientID = "anonymous"
		}
		return clientID, nil
	}

	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("无效的认证token或token已过期")
	}
	token := authHeader[7:]

	isValid, clientID, err := s.authToken.VerifyToken(token)
	if err != nil || !isValid {
		s.logger.Warn(fmt.Sprintf("认证token验证失败: %v", err))
		return "", fmt.Errorf("无效的认证token或token已过期")
	}

	s.syncUserLevel(clientID)
	return clientID, nil
}

// syncUserLevel 从用户表同步配额等级
func (s *DefaultStudioService) syncUserLevel(clientID string) {
	if s.db == nil {
		return
	}
	var user models.User
	if err := s.db.Where("username = ?", clientID).First(&user).Error; err != nil {
		return
	}
	level := task.UserLevel(user.Level)
	switch level {
	case task.UserLevelBasic, task.UserLevelPremium, task.UserLevelBusiness:
		if err := s.taskManager.SetClientLevel(clientID, level); err != nil {
			s.logger.Warn(fmt.Sprintf("同步用户等级失败 client=%s: %v", clientID, err))
		}
	}
}

// recordHistory 写入编辑历史并生成缩略图
func (s *DefaultStudioService) recordHistory(clientID, op, prompt, resultURI string, opErr error, started time.Time) {
	if !s.config.History.Enabled || s.db == nil {
		return
	}

	record := models.EditRecord{
		ClientID:   clientID,
		Operation:  op,
		Prompt:     prompt,
		Success:    opErr == nil,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if opErr != nil {
		record.Message = opErr.Error()
	}

	if opErr == nil && resultURI != "" && s.config.History.ThumbDir != "" {
		thumbPath, err := image.SaveThumbnail(resultURI, s.config.History.ThumbDir, s.config.History.ThumbMax)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("生成缩略图失败: %v", err))
		} else {
			record.ThumbPath = thumbPath
		}
	}

	if err := s.db.Create(&record).Error; err != nil {
		s.logger.Warn(fmt.Sprintf("写入编辑历史失败: %v", err))
	}
}

// selectProvider 选择GenImage provider
func (s *DefaultStudioService) selectProvider(modelName string) *genimage.Provider {
	if modelName != "" {
		if provider, exists := s.providerMap[modelName]; exists {
			return provider
		}
	}
	for _, provider := range s.providerMap {
		return provider
	}
	return nil
}

// addCORSHeaders 添加CORS头
func (s *DefaultStudioService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Headers", "client-id, content-type, authorization")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// respondError 返回错误响应
func (s *DefaultStudioService) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, StudioResponse{
		Success: false,
		Message: message,
	})
}

// Cleanup 清理资源
func (s *DefaultStudioService) Cleanup() error {
	s.taskManager.Stop()
	s.hub.Close()
	for name, provider := range s.providerMap {
		if err := provider.Cleanup(); err != nil {
			s.logger.Warn(fmt.Sprintf("清理GenImage provider %s 失败: %v", name, err))
		}
	}
	s.logger.Info("Studio服务清理完成")
	return nil
}
