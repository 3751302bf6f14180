// Package database 负责初始化外部数据服务的客户端连接。
package database

import (
	"context"

	"gemini-chat-go/internal/config"
	"gemini-chat-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接，仅在 store.backend 为 "redis" 时调用。
func InitRedis(cfg config.RedisConfig) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 启动时探活，连不上直接失败比带病运行好定位
	if err := RDB.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
}
