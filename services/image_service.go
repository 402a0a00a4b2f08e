package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/kendall-kelly/bistro-api/utils"
)

// ImageService handles menu product photos: upload, URL generation and deletion
type ImageService interface {
	// UploadProductImage validates and stores a photo for a product, returns the storage key
	UploadProductImage(ctx context.Context, productID uint, fileHeader *multipart.FileHeader) (string, error)

	// GetImageURL generates a URL for accessing a stored photo
	GetImageURL(ctx context.Context, imageKey string) (string, error)

	// DeleteImage removes a photo from storage
	DeleteImage(ctx context.Context, imageKey string) error
}

// MenuImageService implements ImageService on an ObjectStore
type MenuImageService struct {
	store ObjectStore
	now   func() time.Time
}

var imageServiceInstance ImageService

// NewMenuImageService creates an image service over the given store
func NewMenuImageService(store ObjectStore) *MenuImageService {
	return &MenuImageService{store: store, now: time.Now}
}

// InitImageService initializes the global image service over the given store
func InitImageService(store ObjectStore) ImageService {
	imageServiceInstance = NewMenuImageService(store)
	return imageServiceInstance
}

// GetImageService returns the initialized image service instance
func GetImageService() ImageService {
	return imageServiceInstance
}

// SetImageService sets the image service instance (primarily for testing)
func SetImageService(service ImageService) {
	imageServiceInstance = service
}

// UploadProductImage validates the photo and uploads it under menu/{productID}/
func (s *MenuImageService) UploadProductImage(ctx context.Context, productID uint, fileHeader *multipart.FileHeader) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	key := utils.MenuImageKey(productID, fileHeader.Filename, s.now())
	if err := s.store.PutObject(ctx, key, utils.ImageContentType(fileHeader.Filename), content); err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return key, nil
}

// GetImageURL generates a presigned URL for a photo
func (s *MenuImageService) GetImageURL(ctx context.Context, imageKey string) (string, error) {
	if imageKey == "" {
		return "", nil
	}

	url, err := s.store.GetPresignedURL(ctx, imageKey)
	if err != nil {
		return "", fmt.Errorf("failed to generate image URL: %w", err)
	}
	return url, nil
}

// DeleteImage deletes a photo
func (s *MenuImageService) DeleteImage(ctx context.Context, imageKey string) error {
	if imageKey == "" {
		return nil
	}

	if err := s.store.DeleteObject(ctx, imageKey); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}
