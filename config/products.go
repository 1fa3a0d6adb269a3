package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"price-tracker/internal/models"
)

type watchlist struct {
	Products []models.Product `yaml:"products"`
}

// LoadProducts reads the YAML watchlist. Products are validated up front so
// a malformed entry fails the process at startup instead of mid-run.
func LoadProducts(path string) ([]models.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read products file: %w", err)
	}

	var wl watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("parse products file %s: %w", path, err)
	}
	if len(wl.Products) == 0 {
		return nil, fmt.Errorf("products file %s lists no products", path)
	}

	seen := make(map[string]bool, len(wl.Products))
	for i, p := range wl.Products {
		if p.Name == "" {
			return nil, fmt.Errorf("product %d has no name", i+1)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate product name %q", p.Name)
		}
		seen[p.Name] = true
		if len(p.URLs) == 0 {
			return nil, fmt.Errorf("product %q has no site URLs", p.Name)
		}
		if p.TargetPrice != nil && *p.TargetPrice < 0 {
			return nil, fmt.Errorf("product %q has a negative target price", p.Name)
		}
	}
	return wl.Products, nil
}
