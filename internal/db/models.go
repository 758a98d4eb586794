package db

import (
	"time"
)

type Category struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
	SortOrder   int32  `json:"sort_order"`
	PromptCount int64  `json:"prompt_count"`
}

type Subcategory struct {
	ID          int64  `json:"id"`
	CategoryID  int64  `json:"category_id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Prompt struct {
	ID            int64     `json:"id"`
	CategoryID    int64     `json:"category_id"`
	SubcategoryID int64     `json:"subcategory_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Content       string    `json:"content,omitempty"`
	Tags          []string  `json:"tags"`
	PriceCents    int32     `json:"price_cents"`
	IsPremium     bool      `json:"is_premium"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
