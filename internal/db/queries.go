package db

import (
	"context"

	"github.com/lib/pq"
)

const listCategories = `
SELECT c.id, c.slug, c.name, COALESCE(c.description, ''), COALESCE(c.icon, ''), c.sort_order,
       COUNT(p.id) AS prompt_count
FROM categories c
LEFT JOIN prompts p ON p.category_id = c.id
GROUP BY c.id
ORDER BY c.sort_order, c.name
`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Category{}
	for rows.Next() {
		var i Category
		if err := rows.Scan(
			&i.ID,
			&i.Slug,
			&i.Name,
			&i.Description,
			&i.Icon,
			&i.SortOrder,
			&i.PromptCount,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCategoryBySlug = `
SELECT id, slug, name, COALESCE(description, ''), COALESCE(icon, ''), sort_order, 0
FROM categories
WHERE slug = $1
`

func (q *Queries) GetCategoryBySlug(ctx context.Context, slug string) (Category, error) {
	row := q.db.QueryRowContext(ctx, getCategoryBySlug, slug)
	var i Category
	err := row.Scan(
		&i.ID,
		&i.Slug,
		&i.Name,
		&i.Description,
		&i.Icon,
		&i.SortOrder,
		&i.PromptCount,
	)
	return i, err
}

const listSubcategories = `
SELECT id, category_id, slug, name, COALESCE(description, '')
FROM subcategories
WHERE category_id = $1
ORDER BY name
`

func (q *Queries) ListSubcategories(ctx context.Context, categoryID int64) ([]Subcategory, error) {
	rows, err := q.db.QueryContext(ctx, listSubcategories, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Subcategory{}
	for rows.Next() {
		var i Subcategory
		if err := rows.Scan(&i.ID, &i.CategoryID, &i.Slug, &i.Name, &i.Description); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Listing omits prompt bodies; GetPrompt returns them for non-premium prompts.
const listPromptsByCategory = `
SELECT id, category_id, COALESCE(subcategory_id, 0), title, COALESCE(description, ''), '',
       tags, price_cents, is_premium, created_at, updated_at
FROM prompts
WHERE category_id = $1
ORDER BY updated_at DESC, id
LIMIT $2
`

type ListPromptsByCategoryParams struct {
	CategoryID int64
	Limit      int32
}

func (q *Queries) ListPromptsByCategory(ctx context.Context, arg ListPromptsByCategoryParams) ([]Prompt, error) {
	rows, err := q.db.QueryContext(ctx, listPromptsByCategory, arg.CategoryID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Prompt{}
	for rows.Next() {
		var i Prompt
		if err := scanPrompt(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getPrompt = `
SELECT id, category_id, COALESCE(subcategory_id, 0), title, COALESCE(description, ''),
       CASE WHEN is_premium THEN '' ELSE content END,
       tags, price_cents, is_premium, created_at, updated_at
FROM prompts
WHERE id = $1
`

func (q *Queries) GetPrompt(ctx context.Context, id int64) (Prompt, error) {
	row := q.db.QueryRowContext(ctx, getPrompt, id)
	var i Prompt
	err := scanPrompt(row, &i)
	return i, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrompt(s scanner, i *Prompt) error {
	if err := s.Scan(
		&i.ID,
		&i.CategoryID,
		&i.SubcategoryID,
		&i.Title,
		&i.Description,
		&i.Content,
		pq.Array(&i.Tags),
		&i.PriceCents,
		&i.IsPremium,
		&i.CreatedAt,
		&i.UpdatedAt,
	); err != nil {
		return err
	}
	if i.Tags == nil {
		i.Tags = []string{}
	}
	return nil
}

func (q *Queries) Ping(ctx context.Context) error {
	var one int
	return q.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}
