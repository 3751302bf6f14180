package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"gemini-chat-go/internal/config"
	"gemini-chat-go/pkg/log"
	"gemini-chat-go/pkg/storage"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// UploadService 定义了图片上传的业务接口。
type UploadService interface {
	// Save 保存上传的图片并返回可供 imgUrl 参数引用的访问地址。
	Save(ctx context.Context, file *multipart.FileHeader) (string, error)
}

type uploadService struct {
	cfg config.UploadConfig
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(cfg config.UploadConfig) UploadService {
	return &uploadService{cfg: cfg}
}

// Save 按配置的后端保存文件：local 写本地上传目录，minio 存对象并签发临时下载地址。
// 存储名统一使用随机 uuid 并保留原扩展名，避免路径注入与重名覆盖。
func (s *uploadService) Save(ctx context.Context, file *multipart.FileHeader) (string, error) {
	objectName := uuid.New().String() + filepath.Ext(file.Filename)

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	if s.cfg.Backend == "minio" {
		return s.saveToMinIO(ctx, objectName, src, file)
	}
	return s.saveToLocalDir(objectName, src)
}

func (s *uploadService) saveToLocalDir(objectName string, src multipart.File) (string, error) {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	dstPath := filepath.Join(s.cfg.Dir, objectName)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	log.Infof("image saved to %s", dstPath)
	return "/uploads/" + objectName, nil
}

func (s *uploadService) saveToMinIO(ctx context.Context, objectName string, src multipart.File, file *multipart.FileHeader) (string, error) {
	contentType := file.Header.Get("Content-Type")
	_, err := storage.MinioClient.PutObject(ctx, s.cfg.MinIO.BucketName, objectName, src, file.Size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to put object to minio: %w", err)
	}
	url, err := storage.GetPresignedURL(s.cfg.MinIO.BucketName, objectName, 24*time.Hour)
	if err != nil {
		return "", fmt.Errorf("failed to presign object url: %w", err)
	}
	return url, nil
}
