package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Product is a catalog item with its variant colors and sizes flattened
type Product struct {
	ID           int64          `json:"id" db:"id" yaml:"id"`
	Name         string         `json:"name" db:"name" yaml:"name"`
	Description  string         `json:"description" db:"description" yaml:"description"`
	Price        int64          `json:"price" db:"price" yaml:"price"`
	BrandName    string         `json:"brand" db:"brand_name" yaml:"brand"`
	CategoryName string         `json:"category" db:"category_title" yaml:"category"`
	Colors       pq.StringArray `json:"colors" db:"colors" yaml:"colors"`
	Sizes        pq.StringArray `json:"sizes" db:"sizes" yaml:"sizes"`
	Image        string         `json:"image,omitempty" db:"image" yaml:"image"`
}

// KnowledgeEntry is a canned answer matched by question text or keyword
type KnowledgeEntry struct {
	ID            int64     `json:"id" db:"id" yaml:"id"`
	KnowledgeType string    `json:"knowledge_type" db:"knowledge_type" yaml:"knowledge_type"`
	Question      string    `json:"question" db:"question" yaml:"question"`
	Answer        string    `json:"answer" db:"answer" yaml:"answer"`
	Keywords      JSONArray `json:"keywords" db:"keywords" yaml:"keywords"`
	IsActive      bool      `json:"is_active" db:"is_active" yaml:"is_active"`
}

// UserPreference drives result ranking and size advice for a user
type UserPreference struct {
	UserID              int64      `json:"user_id" db:"user_id"`
	PreferredBrands     JSONArray  `json:"preferred_brands" db:"preferred_brands"`
	PreferredCategories JSONArray  `json:"preferred_categories" db:"preferred_categories"`
	SizePreferences     SizeMap    `json:"size_preferences" db:"size_preferences"`
	PriceRange          PriceRange `json:"price_range" db:"price_range"`
	StylePreferences    JSONArray  `json:"style_preferences" db:"style_preferences"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// PriceRange is a stored {"min", "max"} budget; zero values mean unset
type PriceRange struct {
	Min int64 `json:"min,omitempty"`
	Max int64 `json:"max,omitempty"`
}

// Value implements driver.Valuer interface
func (p PriceRange) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface
func (p *PriceRange) Scan(value interface{}) error {
	if value == nil {
		*p = PriceRange{}
		return nil
	}
	return json.Unmarshal(jsonBytes(value), p)
}

// JSONArray represents a JSON array field
type JSONArray []string

// Value implements driver.Valuer interface
func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = JSONArray{}
		return nil
	}
	return json.Unmarshal(jsonBytes(value), j)
}

// SizeMap maps a category to the size a user usually picks, e.g. {"giày": "42"}
type SizeMap map[string]string

// Value implements driver.Valuer interface
func (m SizeMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner interface
func (m *SizeMap) Scan(value interface{}) error {
	if value == nil {
		*m = SizeMap{}
		return nil
	}
	return json.Unmarshal(jsonBytes(value), m)
}

// JSONMap represents a JSON object field
type JSONMap map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = JSONMap{}
		return nil
	}
	return json.Unmarshal(jsonBytes(value), j)
}

func jsonBytes(value interface{}) []byte {
	switch v := value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(fmt.Sprint(v))
	}
}
