// Package repository provides PostgreSQL-backed persistence for the product
// catalog, API keys, and catalog change events. It also handles
// LISTEN/NOTIFY-based cache invalidation so the service layer stays fresh
// without polling the database into submission.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glassline/configurator/internal/core"
)

const defaultNotifyChannel = "catalog_events"

// ProductLineMeta is the listing row for a product line, without the full
// catalog payload.
type ProductLineMeta struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductCandidate is one product row matching a candidate query.
type ProductCandidate struct {
	ID         int64            `json:"id"`
	LineID     int64            `json:"line_id"`
	Name       string           `json:"name"`
	BaseSKU    string           `json:"base_sku"`
	Attributes map[string]int64 `json:"attributes,omitempty"`
}

// PostgresRepository implements catalog, API key, and event persistence
// backed by a pgxpool connection pool. It also supports LISTEN/NOTIFY for
// real-time snapshot invalidation.
type PostgresRepository struct {
	pool          *pgxpool.Pool
	notifyChannel string
}

// NewPostgresRepository creates a [PostgresRepository] using the default
// "catalog_events" notification channel.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return NewPostgresRepositoryWithChannel(pool, defaultNotifyChannel)
}

// NewPostgresRepositoryWithChannel creates a [PostgresRepository] using the
// specified LISTEN/NOTIFY channel name for catalog event notifications.
func NewPostgresRepositoryWithChannel(pool *pgxpool.Pool, notifyChannel string) *PostgresRepository {
	return &PostgresRepository{
		pool:          pool,
		notifyChannel: normalizeNotifyChannel(notifyChannel),
	}
}

// LoadCatalog assembles and validates the full catalog snapshot for one
// product line: collections with options, line defaults, products with
// presets, overrides and stored attributes, rules, and the SKU segment
// order. Returns pgx.ErrNoRows (wrapped) if the line does not exist and a
// core.CatalogError (wrapped) if the stored data fails validation.
func (r *PostgresRepository) LoadCatalog(ctx context.Context, lineID int64) (*core.Catalog, error) {
	catalog := &core.Catalog{
		Line: core.ProductLine{Defaults: make(map[string][]int64)},
	}

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, sku_separator
		FROM product_lines
		WHERE id = $1
	`, lineID).Scan(&catalog.Line.ID, &catalog.Line.Name, &catalog.Separator)
	if err != nil {
		return nil, fmt.Errorf("load product line %d: %w", lineID, err)
	}

	collectionNames, err := r.loadCollections(ctx, lineID, catalog)
	if err != nil {
		return nil, err
	}
	if err := r.loadDefaults(ctx, lineID, catalog); err != nil {
		return nil, err
	}
	if err := r.loadProducts(ctx, lineID, catalog); err != nil {
		return nil, err
	}
	if err := r.loadOverrides(ctx, lineID, catalog, collectionNames); err != nil {
		return nil, err
	}
	if err := r.loadRules(ctx, lineID, catalog); err != nil {
		return nil, err
	}
	if err := r.loadSegments(ctx, lineID, catalog); err != nil {
		return nil, err
	}

	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("catalog for line %d: %w", lineID, err)
	}

	return catalog, nil
}

// loadCollections loads the line's attribute collections and their options,
// returning a collection id to name index for the override loader.
func (r *PostgresRepository) loadCollections(ctx context.Context, lineID int64, catalog *core.Catalog) (map[int64]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, field_name, multi_select, is_anchor, none_sku_code, in_base_sku
		FROM attribute_collections
		WHERE line_id = $1
		ORDER BY id
	`, lineID)
	if err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}
	defer rows.Close()

	names := make(map[int64]string)
	index := make(map[int64]int)
	for rows.Next() {
		var id int64
		var col core.Collection
		if err := rows.Scan(
			&id,
			&col.Name,
			&col.Field,
			&col.MultiSelect,
			&col.Anchor,
			&col.NoneSKUCode,
			&col.InBaseSKU,
		); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		names[id] = col.Name
		index[id] = len(catalog.Collections)
		catalog.Collections = append(catalog.Collections, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load collections rows: %w", err)
	}

	optRows, err := r.pool.Query(ctx, `
		SELECT o.collection_id, o.id, o.name, o.sku_code, o.active, o.sort_order,
		       o.hex_value, o.width_mm, o.height_mm
		FROM attribute_options o
		JOIN attribute_collections c ON c.id = o.collection_id
		WHERE c.line_id = $1
		ORDER BY o.collection_id, o.sort_order, o.id
	`, lineID)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var collectionID int64
		var opt core.Option
		if err := optRows.Scan(
			&collectionID,
			&opt.ID,
			&opt.Name,
			&opt.SKUCode,
			&opt.Active,
			&opt.SortOrder,
			&opt.HexValue,
			&opt.WidthMM,
			&opt.HeightMM,
		); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		i, ok := index[collectionID]
		if !ok {
			return nil, fmt.Errorf("option %d references unknown collection %d", opt.ID, collectionID)
		}
		catalog.Collections[i].Options = append(catalog.Collections[i].Options, opt)
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("load options rows: %w", err)
	}

	return names, nil
}

func (r *PostgresRepository) loadDefaults(ctx context.Context, lineID int64, catalog *core.Catalog) error {
	rows, err := r.pool.Query(ctx, `
		SELECT c.name, d.option_id
		FROM line_default_options d
		JOIN attribute_collections c ON c.id = d.collection_id
		JOIN attribute_options o ON o.id = d.option_id
		WHERE d.line_id = $1
		ORDER BY c.id, o.sort_order, o.id
	`, lineID)
	if err != nil {
		return fmt.Errorf("load line defaults: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var collection string
		var optionID int64
		if err := rows.Scan(&collection, &optionID); err != nil {
			return fmt.Errorf("scan line default: %w", err)
		}
		catalog.Line.Defaults[collection] = append(catalog.Line.Defaults[collection], optionID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load line defaults rows: %w", err)
	}
	return nil
}

func (r *PostgresRepository) loadProducts(ctx context.Context, lineID int64, catalog *core.Catalog) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, line_id, name, base_sku, presets, attributes
		FROM products
		WHERE line_id = $1
		ORDER BY id
	`, lineID)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p core.Product
		var presets, attributes []byte
		if err := rows.Scan(&p.ID, &p.LineID, &p.Name, &p.BaseSKU, &presets, &attributes); err != nil {
			return fmt.Errorf("scan product: %w", err)
		}
		if p.Presets, err = decodeIDMap(presets); err != nil {
			return fmt.Errorf("product %d presets: %w", p.ID, err)
		}
		if p.Attributes, err = decodeIDMap(attributes); err != nil {
			return fmt.Errorf("product %d attributes: %w", p.ID, err)
		}
		catalog.Products = append(catalog.Products, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load products rows: %w", err)
	}
	return nil
}

func (r *PostgresRepository) loadOverrides(ctx context.Context, lineID int64, catalog *core.Catalog, collectionNames map[int64]string) error {
	rows, err := r.pool.Query(ctx, `
		SELECT v.product_id, v.collection_id, v.option_id
		FROM product_option_overrides v
		JOIN products p ON p.id = v.product_id
		JOIN attribute_options o ON o.id = v.option_id
		WHERE p.line_id = $1
		ORDER BY v.product_id, v.collection_id, o.sort_order, o.id
	`, lineID)
	if err != nil {
		return fmt.Errorf("load product overrides: %w", err)
	}
	defer rows.Close()

	byProduct := make(map[int64]map[string][]int64)
	for rows.Next() {
		var productID, collectionID, optionID int64
		if err := rows.Scan(&productID, &collectionID, &optionID); err != nil {
			return fmt.Errorf("scan product override: %w", err)
		}
		name, ok := collectionNames[collectionID]
		if !ok {
			return fmt.Errorf("override for product %d references unknown collection %d", productID, collectionID)
		}
		if byProduct[productID] == nil {
			byProduct[productID] = make(map[string][]int64)
		}
		byProduct[productID][name] = append(byProduct[productID][name], optionID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load product overrides rows: %w", err)
	}

	for i := range catalog.Products {
		if overrides, ok := byProduct[catalog.Products[i].ID]; ok {
			catalog.Products[i].Overrides = overrides
		}
	}
	return nil
}

func (r *PostgresRepository) loadRules(ctx context.Context, lineID int64, catalog *core.Catalog) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, priority, if_this, then_that
		FROM configuration_rules
		WHERE line_id = $1
		ORDER BY id
	`, lineID)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	var raws []core.RawRule
	for rows.Next() {
		var raw core.RawRule
		if err := rows.Scan(&raw.ID, &raw.Priority, &raw.IfThis, &raw.ThenThat); err != nil {
			return fmt.Errorf("scan rule: %w", err)
		}
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load rules rows: %w", err)
	}

	rules, err := core.BuildRules(raws)
	if err != nil {
		return fmt.Errorf("build rules: %w", err)
	}
	catalog.Rules = rules
	return nil
}

func (r *PostgresRepository) loadSegments(ctx context.Context, lineID int64, catalog *core.Catalog) error {
	rows, err := r.pool.Query(ctx, `
		SELECT position, collection
		FROM sku_segment_order
		WHERE line_id = $1
		ORDER BY position
	`, lineID)
	if err != nil {
		return fmt.Errorf("load segment order: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seg core.Segment
		if err := rows.Scan(&seg.Position, &seg.Collection); err != nil {
			return fmt.Errorf("scan segment: %w", err)
		}
		catalog.Segments = append(catalog.Segments, seg)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load segment order rows: %w", err)
	}
	return nil
}

// ProductLineID returns the id of the line a product belongs to. Returns
// pgx.ErrNoRows (wrapped) if the product does not exist.
func (r *PostgresRepository) ProductLineID(ctx context.Context, productID int64) (int64, error) {
	var lineID int64
	if err := r.pool.QueryRow(ctx, `
		SELECT line_id FROM products WHERE id = $1
	`, productID).Scan(&lineID); err != nil {
		return 0, fmt.Errorf("product line id: %w", err)
	}
	return lineID, nil
}

// ListProductLines returns all product lines ordered by id.
func (r *PostgresRepository) ListProductLines(ctx context.Context) ([]ProductLineMeta, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM product_lines
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list product lines: %w", err)
	}
	defer rows.Close()

	lines := make([]ProductLineMeta, 0)
	for rows.Next() {
		var line ProductLineMeta
		if err := rows.Scan(&line.ID, &line.Name, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list product lines rows: %w", err)
	}
	return lines, nil
}

// ListProductCandidates returns the products of a line whose stored
// attributes contain every entry of the filter, using jsonb containment so
// the index on products.attributes does the narrowing.
func (r *PostgresRepository) ListProductCandidates(ctx context.Context, lineID int64, filter map[string]int64) ([]ProductCandidate, error) {
	filterJSON, err := encodeIDMap(filter)
	if err != nil {
		return nil, fmt.Errorf("encode candidate filter: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, line_id, name, base_sku, attributes
		FROM products
		WHERE line_id = $1
		  AND attributes @> $2::jsonb
		ORDER BY id
	`, lineID, filterJSON)
	if err != nil {
		return nil, fmt.Errorf("list product candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]ProductCandidate, 0)
	for rows.Next() {
		var c ProductCandidate
		var attributes []byte
		if err := rows.Scan(&c.ID, &c.LineID, &c.Name, &c.BaseSKU, &attributes); err != nil {
			return nil, fmt.Errorf("scan product candidate: %w", err)
		}
		if c.Attributes, err = decodeIDMap(attributes); err != nil {
			return nil, fmt.Errorf("product %d attributes: %w", c.ID, err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list product candidates rows: %w", err)
	}
	return candidates, nil
}

func normalizeNotifyChannel(channel string) string {
	if trimmed := strings.TrimSpace(channel); trimmed != "" {
		return trimmed
	}
	return defaultNotifyChannel
}

func listenStatement(channel string) string {
	return fmt.Sprintf("LISTEN %s", pgx.Identifier{channel}.Sanitize())
}

// decodeIDMap parses a jsonb field → option id object. Empty input decodes
// to nil so absent maps stay absent.
func decodeIDMap(raw []byte) (map[string]int64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]int64
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// encodeIDMap serializes a filter map, normalizing nil to the empty object
// so jsonb containment matches every row.
func encodeIDMap(filter map[string]int64) ([]byte, error) {
	if len(filter) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(filter)
}
