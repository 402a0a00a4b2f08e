package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/bistro-api/config"
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/kendall-kelly/bistro-api/services"
	"github.com/kendall-kelly/bistro-api/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProductBody represents the request body for creating or updating a menu product
type ProductBody struct {
	Name        string          `json:"name" binding:"required"`
	Description *string         `json:"description"`
	Category    string          `json:"category" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable *bool           `json:"is_available"`
}

func (b ProductBody) validate() error {
	if !b.Price.IsPositive() {
		return errors.New("price must be positive")
	}
	return nil
}

// withImageURL fills the computed ImageURL field from the stored key
func withImageURL(c *gin.Context, product *models.Product) {
	if product.ImageS3Key == nil || *product.ImageS3Key == "" {
		return
	}
	imageService := services.GetImageService()
	if imageService == nil {
		return
	}
	url, err := imageService.GetImageURL(c.Request.Context(), *product.ImageS3Key)
	if err != nil {
		config.GetLogger().Warn("failed to generate product image url",
			zap.Uint("product_id", product.ID),
			zap.Error(err),
		)
		return
	}
	product.ImageURL = &url
}

func loadProduct(c *gin.Context) (*models.Product, bool) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}

	var product models.Product
	if err := config.GetDB().WithContext(c.Request.Context()).First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found")
			return nil, false
		}
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch product")
		return nil, false
	}
	return &product, true
}

// ListProducts handles GET /api/v1/products
// Query parameters: category, available (true|false)
func ListProducts(c *gin.Context) {
	query := config.GetDB().WithContext(c.Request.Context()).Model(&models.Product{})
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	switch c.Query("available") {
	case "true":
		query = query.Where("is_available = ?", true)
	case "false":
		query = query.Where("is_available = ?", false)
	}

	var products []models.Product
	if err := query.Order("category asc, name asc").Find(&products).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch products")
		return
	}
	for i := range products {
		withImageURL(c, &products[i])
	}
	respondOK(c, http.StatusOK, products)
}

// GetProduct handles GET /api/v1/products/:id
func GetProduct(c *gin.Context) {
	product, ok := loadProduct(c)
	if !ok {
		return
	}
	withImageURL(c, product)
	respondOK(c, http.StatusOK, product)
}

// CreateProduct handles POST /api/v1/products (staff)
func CreateProduct(c *gin.Context) {
	var body ProductBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}
	if err := body.validate(); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	product := models.Product{
		Name:        strings.TrimSpace(body.Name),
		Description: body.Description,
		Category:    strings.TrimSpace(body.Category),
		Price:       services.RoundCurrency(body.Price),
		IsAvailable: body.IsAvailable == nil || *body.IsAvailable,
	}
	if err := config.GetDB().WithContext(c.Request.Context()).Create(&product).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create product")
		return
	}
	respondOK(c, http.StatusCreated, product)
}

// UpdateProduct handles PUT /api/v1/products/:id (staff). Existing orders keep their snapshot.
func UpdateProduct(c *gin.Context) {
	product, ok := loadProduct(c)
	if !ok {
		return
	}

	var body ProductBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}
	if err := body.validate(); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	updates := map[string]interface{}{
		"name":        strings.TrimSpace(body.Name),
		"description": body.Description,
		"category":    strings.TrimSpace(body.Category),
		"price":       services.RoundCurrency(body.Price),
	}
	if body.IsAvailable != nil {
		updates["is_available"] = *body.IsAvailable
	}

	db := config.GetDB().WithContext(c.Request.Context())
	if err := db.Model(product).Updates(updates).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update product")
		return
	}
	if err := db.First(product, product.ID).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch updated product")
		return
	}
	withImageURL(c, product)
	respondOK(c, http.StatusOK, product)
}

// DeleteProduct handles DELETE /api/v1/products/:id (staff) - removes it from the menu
func DeleteProduct(c *gin.Context) {
	product, ok := loadProduct(c)
	if !ok {
		return
	}
	if err := config.GetDB().WithContext(c.Request.Context()).Delete(product).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete product")
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": product.ID, "deleted": true})
}

// UploadProductImage handles POST /api/v1/products/:id/image (staff, multipart field "image")
func UploadProductImage(c *gin.Context) {
	product, ok := loadProduct(c)
	if !ok {
		return
	}

	imageService := services.GetImageService()
	if imageService == nil {
		respondError(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Image storage is not configured")
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		respondError(c, http.StatusBadRequest, "MISSING_FILE", "An image file is required in the \"image\" field")
		return
	}

	key, err := imageService.UploadProductImage(c.Request.Context(), product.ID, fileHeader)
	if err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			respondError(c, http.StatusBadRequest, uploadErr.Code, uploadErr.Message)
			return
		}
		config.GetLogger().Error("product image upload failed", zap.Uint("product_id", product.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to upload image")
		return
	}

	previous := product.ImageS3Key
	db := config.GetDB().WithContext(c.Request.Context())
	if err := db.Model(product).Update("image_s3_key", key).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to save product image")
		return
	}
	product.ImageS3Key = &key

	if previous != nil && *previous != "" && *previous != key {
		if err := imageService.DeleteImage(c.Request.Context(), *previous); err != nil {
			config.GetLogger().Warn("failed to delete replaced product image", zap.String("key", *previous), zap.Error(err))
		}
	}

	withImageURL(c, product)
	respondOK(c, http.StatusOK, product)
}

// DeleteProductImage handles DELETE /api/v1/products/:id/image (staff)
func DeleteProductImage(c *gin.Context) {
	product, ok := loadProduct(c)
	if !ok {
		return
	}
	if product.ImageS3Key == nil || *product.ImageS3Key == "" {
		respondError(c, http.StatusNotFound, "IMAGE_NOT_FOUND", "Product has no image")
		return
	}

	imageService := services.GetImageService()
	if imageService == nil {
		respondError(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Image storage is not configured")
		return
	}
	if err := imageService.DeleteImage(c.Request.Context(), *product.ImageS3Key); err != nil {
		respondError(c, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete image")
		return
	}
	if err := config.GetDB().WithContext(c.Request.Context()).Model(product).Update("image_s3_key", nil).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update product")
		return
	}
	product.ImageS3Key = nil
	respondOK(c, http.StatusOK, product)
}
