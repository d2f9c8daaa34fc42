package repository

import (
	"context"

	"gorm.io/gorm"

	"storefront/internal/model"
)

// productColumns are the mutable columns; an update always writes all of them.
var productColumns = []string{"name", "description", "price", "category", "image_url"}

// ProductRepository defines catalog persistence operations.
type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, id uint) (*model.Product, error)
	List(ctx context.Context) ([]model.Product, error)
	// Replace overwrites every mutable column of the product with the given id and
	// returns the number of rows matched.
	Replace(ctx context.Context, id uint, product *model.Product) (int64, error)
	// Delete physically removes the product and returns the number of rows removed.
	Delete(ctx context.Context, id uint) (int64, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository.
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// Create creates a new product.
func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// FindByID finds a product by ID.
func (r *productRepository) FindByID(ctx context.Context, id uint) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// List returns every product in id order.
func (r *productRepository) List(ctx context.Context) ([]model.Product, error) {
	products := []model.Product{}
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// Replace writes all mutable columns, including zero values and NULLs.
func (r *productRepository) Replace(ctx context.Context, id uint, product *model.Product) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", id).
		Select(productColumns).
		Updates(product)
	return res.RowsAffected, res.Error
}

// Delete removes the row; there is no soft delete.
func (r *productRepository) Delete(ctx context.Context, id uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Product{})
	return res.RowsAffected, res.Error
}
