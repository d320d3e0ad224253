package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"digistore/internal/imagehost"
)

const MaxUploadSize = 5 << 20

var allowedImageTypes = map[string]string{
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/png":     "png",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
}

type UploadService struct {
	uploader imagehost.Uploader
	logger   *logrus.Logger
}

func NewUploadService(logger *logrus.Logger, uploader imagehost.Uploader) *UploadService {
	return &UploadService{uploader: uploader, logger: logger}
}

// Upload validates an image and hands it to the image host, returning the
// public URL.
func (s *UploadService) Upload(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", validationf("invalid file type, only JPEG, PNG, WebP and SVG are allowed")
	}
	if size <= 0 {
		return "", validationf("no file uploaded")
	}
	if size > MaxUploadSize {
		return "", validationf("file too large, maximum size is 5MB")
	}
	if fileExt := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); fileExt != "" {
		if extensionTypes[fileExt] {
			ext = fileExt
		}
	}

	url, err := s.uploader.Upload(ctx, ext, io.LimitReader(r, MaxUploadSize))
	if err != nil {
		s.logger.WithError(err).Error("Image upload failed")
		return "", fmt.Errorf("%w: image upload failed", ErrCollaborator)
	}
	s.logger.WithFields(logrus.Fields{"url": url, "size": size}).Info("Image uploaded")
	return url, nil
}

var extensionTypes = map[string]bool{"jpg": true, "jpeg": true, "png": true, "webp": true, "svg": true}
