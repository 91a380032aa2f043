package domain

import "strings"

// DocumentSchema describes the SKU collection used by the document dialect.
const DocumentSchema = `{
    "skus": {
        "_id": "ObjectId",
        "name": "string",
        "purchase_cost": "decimal",
        "packaging_cost": "decimal",
        "factory_to_warehouse_cost": "object",
        "warehouse_to_fba_cost": "object",
        "last_mile_cost": "object",
        "mrp": "decimal",
        "quantity_in_min_unit": "integer",
        "asin": "string",
        "client_id": "ObjectId",
        "tags": "array",
        "createdAt": "Date",
        "updatedAt": "Date"
    }
}`

// RelationalSchema describes the same data model laid out as tables. The client
// column appears in several tables on purpose: cross-table questions must union them.
const RelationalSchema = `CREATE TABLE clients (
    id          BIGINT PRIMARY KEY,
    client      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE skus (
    id                    BIGINT PRIMARY KEY,
    name                  TEXT NOT NULL,
    asin                  TEXT,
    client                TEXT NOT NULL,
    purchase_cost         NUMERIC(12,2),
    packaging_cost        NUMERIC(12,2),
    mrp                   NUMERIC(12,2),
    quantity_in_min_unit  INTEGER,
    tags                  TEXT[],
    created_at            TIMESTAMPTZ NOT NULL,
    updated_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE shipments (
    id              BIGINT PRIMARY KEY,
    sku_id          BIGINT REFERENCES skus(id),
    client          TEXT NOT NULL,
    leg             TEXT NOT NULL,
    cost            NUMERIC(12,2),
    shipped_at      TIMESTAMPTZ
);`

// DefaultSchema returns the built-in schema descriptor for a dialect.
func DefaultSchema(d Dialect) string {
	if d == DialectRelational {
		return RelationalSchema
	}
	return DocumentSchema
}

// NormalizeSchema trims surrounding whitespace so that loaded schema files and
// built-in constants render identically.
func NormalizeSchema(s string) string {
	return strings.TrimSpace(s)
}
