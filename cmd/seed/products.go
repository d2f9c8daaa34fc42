package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "storefront/internal/errors"
	"storefront/internal/service"
)

var errMissingSource = errors.New("--source is required")

// ProductSeed is one entry of the seed document.
type ProductSeed struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    string           `json:"category"`
	ImageURL    *string          `json:"image_url"`
}

// loadProductSeeds reads a JSON array of products from a local path or an http(s) URL.
func loadProductSeeds(ctx context.Context, source string) ([]ProductSeed, error) {
	var (
		body []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		body, err = fetch(ctx, source)
	} else {
		body, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, err
	}

	var items []ProductSeed
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return items, nil
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// seedProducts creates every valid item. Items the catalog rejects are skipped and logged.
func seedProducts(ctx context.Context, svc service.ProductService, items []ProductSeed, log zerolog.Logger) (created int, skipped int, err error) {
	for i, item := range items {
		_, err := svc.Create(ctx, service.ProductInput{
			Name:        item.Name,
			Description: item.Description,
			Price:       item.Price,
			Category:    item.Category,
			ImageURL:    item.ImageURL,
		})
		if errors.Is(err, apperrors.ErrInvalidInput) {
			log.Warn().Int("index", i).Str("name", item.Name).Err(err).Msg("skipping product")
			skipped++
			continue
		}
		if err != nil {
			return created, skipped, fmt.Errorf("error creating product %q: %w", item.Name, err)
		}
		created++
	}
	return created, skipped, nil
}
