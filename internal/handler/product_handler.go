package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/service"
)

// ProductHandler handles catalog endpoints.
type ProductHandler struct {
	productService service.ProductService
}

// NewProductHandler creates a new product handler.
func NewProductHandler(productService service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// ProductRequest is the body of create and full-replace requests.
type ProductRequest struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Description string           `json:"description" validate:"required"`
	Price       *decimal.Decimal `json:"price" validate:"required" swaggertype:"number"`
	Category    string           `json:"category" validate:"max=255"`
	ImageURL    *string          `json:"image_url" validate:"omitempty,max=500"`
}

func (r ProductRequest) input() service.ProductInput {
	return service.ProductInput{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Category:    r.Category,
		ImageURL:    r.ImageURL,
	}
}

// ProductCreatedResponse acknowledges a created product.
type ProductCreatedResponse struct {
	Message string         `json:"message"`
	Product *model.Product `json:"product"`
}

// ProductChangedResponse acknowledges an update or delete.
type ProductChangedResponse struct {
	Message      string `json:"message"`
	RowsAffected int64  `json:"rows_affected"`
}

// List godoc
// @Summary List products
// @Tags products
// @Produce json
// @Success 200 {array} model.Product
// @Failure 500 {object} errors.ErrorResponse
// @Router /products [get]
func (h *ProductHandler) List(c echo.Context) error {
	products, err := h.productService.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, products)
}

// Get godoc
// @Summary Get a product
// @Tags products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} model.Product
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /products/{id} [get]
func (h *ProductHandler) Get(c echo.Context) error {
	id, herr := parseID(c)
	if herr != nil {
		return herr
	}
	product, err := h.productService.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, product)
}

// Create godoc
// @Summary Add a product
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ProductRequest true "Product"
// @Success 201 {object} ProductCreatedResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /products [post]
func (h *ProductHandler) Create(c echo.Context, _ *auth.Claims) error {
	var req ProductRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	product, err := h.productService.Create(c.Request().Context(), req.input())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ProductCreatedResponse{
		Message: "Product added successfully",
		Product: product,
	})
}

// Update godoc
// @Summary Replace a product
// @Description Every mutable field is overwritten. An id that matches nothing still returns 200 with rows_affected 0.
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Product ID"
// @Param request body ProductRequest true "Product"
// @Success 200 {object} ProductChangedResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /products/{id} [put]
func (h *ProductHandler) Update(c echo.Context, _ *auth.Claims) error {
	id, herr := parseID(c)
	if herr != nil {
		return herr
	}
	var req ProductRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	rows, err := h.productService.Update(c.Request().Context(), id, req.input())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ProductChangedResponse{
		Message:      "Product updated successfully",
		RowsAffected: rows,
	})
}

// Delete godoc
// @Summary Delete a product
// @Tags products
// @Produce json
// @Security BearerAuth
// @Param id path int true "Product ID"
// @Success 200 {object} ProductChangedResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /products/{id} [delete]
func (h *ProductHandler) Delete(c echo.Context, _ *auth.Claims) error {
	id, herr := parseID(c)
	if herr != nil {
		return herr
	}
	rows, err := h.productService.Delete(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ProductChangedResponse{
		Message:      "Product deleted",
		RowsAffected: rows,
	})
}
