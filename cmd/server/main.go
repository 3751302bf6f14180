// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gemini-chat-go/internal/config"
	"gemini-chat-go/internal/handler"
	"gemini-chat-go/internal/middleware"
	"gemini-chat-go/internal/repository"
	"gemini-chat-go/internal/service"
	"gemini-chat-go/pkg/database"
	"gemini-chat-go/pkg/gemini"
	"gemini-chat-go/pkg/imagefetch"
	"gemini-chat-go/pkg/log"
	"gemini-chat-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化对话仓储（默认文件后端；配置为 redis 时走 Redis）
	var conversationRepo repository.ConversationRepository
	switch cfg.Store.Backend {
	case "redis":
		database.InitRedis(cfg.Store.Redis)
		conversationRepo = repository.NewRedisConversationRepository(database.RDB)
	default:
		fileRepo, err := repository.NewFileConversationRepository(cfg.Store.FilePath)
		if err != nil {
			log.Fatal("初始化对话表文件失败", err)
		}
		conversationRepo = fileRepo
	}

	// 上传后端为 minio 时才初始化对象存储客户端
	if cfg.Upload.Backend == "minio" {
		storage.InitMinIO(cfg.Upload.MinIO)
	}

	// 4. 初始化 Service (依赖注入)
	geminiClient := gemini.NewClient(cfg.Gemini)
	imageFetcher := imagefetch.NewFetcher(cfg.Image)
	chatService := service.NewChatService(conversationRepo, geminiClient, imageFetcher)
	uploadService := service.NewUploadService(cfg.Upload)

	// 5. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 6. 注册路由
	r.StaticFile("/", "./static/index.html")
	r.Static("/uploads", cfg.Upload.Dir)
	r.GET("/gemini-chat", handler.NewChatHandler(chatService).Chat)
	r.POST("/upload-image", handler.NewUploadHandler(uploadService).Upload)

	// 7. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 http://localhost:%s", cfg.Server.Port)
		log.Infof("Gemini Chat available at http://localhost:%s/gemini-chat", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
