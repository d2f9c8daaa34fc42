package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "storefront/internal/errors"
	"storefront/internal/model"
	"storefront/internal/repository"
)

// ProductInput carries every mutable product field. Price is a pointer so that an
// absent price can be told apart from zero.
type ProductInput struct {
	Name        string
	Description string
	Price       *decimal.Decimal
	Category    string
	ImageURL    *string
}

// priceExponentLimit bounds the decimal exponent of an incoming price. Rescaling a
// value like 1e-50000000 to cents costs time and memory proportional to the exponent.
const priceExponentLimit = 10

// toModel validates the input and applies defaults.
func (in ProductInput) toModel() (*model.Product, error) {
	if in.Name == "" || in.Description == "" || in.Price == nil {
		return nil, fmt.Errorf("%w: Missing required fields", apperrors.ErrInvalidInput)
	}
	if exp := in.Price.Exponent(); exp < -priceExponentLimit || exp > priceExponentLimit {
		return nil, fmt.Errorf("%w: price is out of range", apperrors.ErrInvalidInput)
	}
	if in.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", apperrors.ErrInvalidInput)
	}
	price := in.Price.Round(2)
	if price.GreaterThan(model.MaxPrice) {
		return nil, fmt.Errorf("%w: price must not exceed %s", apperrors.ErrInvalidInput, model.MaxPrice.StringFixed(2))
	}

	category := in.Category
	if category == "" {
		category = model.DefaultCategory
	}
	var imageURL *string
	if in.ImageURL != nil && strings.TrimSpace(*in.ImageURL) != "" {
		u := *in.ImageURL
		imageURL = &u
	}

	return &model.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       price,
		Category:    category,
		ImageURL:    imageURL,
	}, nil
}

// ProductService handles catalog operations.
type ProductService interface {
	List(ctx context.Context) ([]model.Product, error)
	Get(ctx context.Context, id uint) (*model.Product, error)
	Create(ctx context.Context, in ProductInput) (*model.Product, error)
	// Update replaces every mutable field and returns the number of products matched.
	Update(ctx context.Context, id uint, in ProductInput) (int64, error)
	// Delete removes the product and returns the number of products removed.
	Delete(ctx context.Context, id uint) (int64, error)
}

type productService struct {
	repo repository.ProductRepository
	log  zerolog.Logger
}

// NewProductService creates a new product service.
func NewProductService(repo repository.ProductRepository, log zerolog.Logger) ProductService {
	return &productService{
		repo: repo,
		log:  log.With().Str("service", "product").Logger(),
	}
}

func (s *productService) List(ctx context.Context) ([]model.Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *productService) Get(ctx context.Context, id uint) (*model.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return product, nil
}

func (s *productService) Create(ctx context.Context, in ProductInput) (*model.Product, error) {
	product, err := in.toModel()
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

// Update acknowledges ids that match nothing, as the catalog always has; the
// caller sees the zero match count.
func (s *productService) Update(ctx context.Context, id uint, in ProductInput) (int64, error) {
	product, err := in.toModel()
	if err != nil {
		return 0, err
	}
	rows, err := s.repo.Replace(ctx, id, product)
	if err != nil {
		return 0, fmt.Errorf("update product %d: %w", id, err)
	}
	if rows == 0 {
		s.log.Warn().Uint("product_id", id).Msg("update matched no product")
	}
	return rows, nil
}

func (s *productService) Delete(ctx context.Context, id uint) (int64, error) {
	rows, err := s.repo.Delete(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("delete product %d: %w", id, err)
	}
	if rows == 0 {
		s.log.Warn().Uint("product_id", id).Msg("delete matched no product")
	}
	return rows, nil
}
