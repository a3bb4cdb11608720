package testutil

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Schema is the warehouse service schema used by integration tests. Constraint
// names are load-bearing: database.MapPQError translates them into domain
// errors.
const Schema = `
CREATE TABLE IF NOT EXISTS idempotency_records (
	key           TEXT PRIMARY KEY,
	operation     TEXT NOT NULL,
	fingerprint   TEXT NOT NULL,
	status        TEXT NOT NULL,
	result        JSONB,
	events        JSONB,
	published_at  TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at    TIMESTAMPTZ,
	CONSTRAINT idempotency_records_status_valid CHECK (status IN ('in_flight', 'completed', 'failed'))
);

CREATE TABLE IF NOT EXISTS inventory_records (
	product_id    TEXT NOT NULL,
	location_id   TEXT NOT NULL,
	on_hand       INTEGER NOT NULL DEFAULT 0,
	reserved      INTEGER NOT NULL DEFAULT 0,
	allocated     INTEGER NOT NULL DEFAULT 0,
	pick_sequence INTEGER NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT inventory_records_product_location PRIMARY KEY (product_id, location_id),
	CONSTRAINT inventory_records_quantity_non_negative CHECK (on_hand >= 0 AND reserved >= 0 AND allocated >= 0),
	CONSTRAINT inventory_records_committed_within_on_hand CHECK (reserved + allocated <= on_hand)
);

CREATE TABLE IF NOT EXISTS threshold_rules (
	id             TEXT PRIMARY KEY,
	scope          TEXT NOT NULL,
	product_id     TEXT,
	location_id    TEXT,
	metric         TEXT NOT NULL,
	operator       TEXT NOT NULL,
	value          INTEGER NOT NULL,
	critical_value INTEGER,
	severity       TEXT NOT NULL DEFAULT 'warning',
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS inventory_movements (
	id                TEXT PRIMARY KEY,
	product_id        TEXT NOT NULL,
	location_id       TEXT NOT NULL,
	delta             INTEGER NOT NULL,
	resulting_on_hand INTEGER NOT NULL,
	reason            TEXT NOT NULL,
	reference         TEXT,
	actor_id          TEXT,
	review_status     TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT inventory_movements_review_status_valid CHECK (
		review_status IS NULL OR review_status IN ('pending_review', 'approved', 'rejected'))
);

CREATE TABLE IF NOT EXISTS picks (
	id                 TEXT PRIMARY KEY,
	warehouse_id       TEXT NOT NULL,
	type               TEXT NOT NULL,
	strategy           TEXT NOT NULL,
	zone               TEXT,
	status             TEXT NOT NULL,
	workers            TEXT[] NOT NULL DEFAULT '{}',
	optimization_score DOUBLE PRECISION,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT picks_status_valid CHECK (status IN ('pending', 'assigned', 'in_progress', 'completed'))
);

CREATE TABLE IF NOT EXISTS pick_items (
	id                  TEXT PRIMARY KEY,
	pick_id             TEXT NOT NULL REFERENCES picks(id),
	product_id          TEXT NOT NULL,
	location_id         TEXT NOT NULL,
	fulfillment_item_id TEXT,
	order_ref           TEXT NOT NULL,
	priority            INTEGER NOT NULL DEFAULT 0,
	quantity            INTEGER NOT NULL,
	sequence            INTEGER NOT NULL DEFAULT 0,
	location_sequence   INTEGER NOT NULL DEFAULT 0,
	picked              BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS carriers (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	code        TEXT NOT NULL,
	base_rate   NUMERIC(12,2) NOT NULL DEFAULT 0,
	rate_per_kg NUMERIC(12,4) NOT NULL DEFAULT 0,
	is_default  BOOLEAN NOT NULL DEFAULT FALSE,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS order_fulfillments (
	id                    TEXT PRIMARY KEY,
	order_ref             TEXT NOT NULL,
	warehouse_id          TEXT NOT NULL,
	status                TEXT NOT NULL,
	priority              INTEGER NOT NULL DEFAULT 0,
	auto_assign_locations BOOLEAN NOT NULL DEFAULT TRUE,
	auto_select_carrier   BOOLEAN NOT NULL DEFAULT TRUE,
	carrier_id            TEXT REFERENCES carriers(id),
	shipping_cost         NUMERIC(12,2),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT order_fulfillments_status_valid CHECK (
		status IN ('pending', 'in_progress', 'completed', 'cancelled'))
);

CREATE TABLE IF NOT EXISTS fulfillment_items (
	id               TEXT PRIMARY KEY,
	fulfillment_id   TEXT NOT NULL REFERENCES order_fulfillments(id),
	product_id       TEXT NOT NULL,
	ordered          INTEGER NOT NULL,
	fulfilled        INTEGER NOT NULL DEFAULT 0,
	remaining        INTEGER NOT NULL,
	unit_weight      NUMERIC(10,3) NOT NULL DEFAULT 0,
	pick_location_id TEXT,
	CONSTRAINT fulfillment_items_quantity_non_negative CHECK (
		ordered > 0 AND fulfilled >= 0 AND remaining >= 0),
	CONSTRAINT fulfillment_items_remaining_consistent CHECK (remaining = ordered - fulfilled)
);

CREATE TABLE IF NOT EXISTS load_plans (
	id                TEXT PRIMARY KEY,
	warehouse_id      TEXT NOT NULL,
	vehicle_id        TEXT NOT NULL,
	driver_id         TEXT,
	status            TEXT NOT NULL,
	strategy          TEXT NOT NULL,
	origin_lat        DOUBLE PRECISION NOT NULL DEFAULT 0,
	origin_lon        DOUBLE PRECISION NOT NULL DEFAULT 0,
	route_fingerprint TEXT,
	total_distance_km DOUBLE PRECISION,
	departed_at       TIMESTAMPTZ,
	fuel_level        DOUBLE PRECISION,
	odometer_km       DOUBLE PRECISION,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT load_plans_status_valid CHECK (
		status IN ('pending', 'optimized', 'loaded', 'dispatched'))
);

CREATE TABLE IF NOT EXISTS shipments (
	id             TEXT PRIMARY KEY,
	fulfillment_id TEXT REFERENCES order_fulfillments(id),
	order_ref      TEXT NOT NULL,
	warehouse_id   TEXT NOT NULL,
	status         TEXT NOT NULL,
	carrier_id     TEXT REFERENCES carriers(id),
	address        TEXT NOT NULL,
	dest_lat       DOUBLE PRECISION NOT NULL DEFAULT 0,
	dest_lon       DOUBLE PRECISION NOT NULL DEFAULT 0,
	weight         NUMERIC(10,3),
	load_plan_id   TEXT REFERENCES load_plans(id),
	stop_sequence  INTEGER,
	shipped_at     TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT shipments_status_valid CHECK (
		status IN ('pending', 'ready', 'shipped', 'cancelled'))
);

CREATE TABLE IF NOT EXISTS warehouse_users (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	role      TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS notifications (
	id              TEXT PRIMARY KEY,
	recipient       TEXT NOT NULL,
	event_id        TEXT NOT NULL,
	event_name      TEXT NOT NULL,
	payload         JSONB,
	status          TEXT NOT NULL DEFAULT 'delivered',
	acknowledged_at TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT notifications_event_recipient UNIQUE (event_id, recipient)
);

CREATE INDEX IF NOT EXISTS idx_movements_product ON inventory_movements (product_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_pick_items_pick ON pick_items (pick_id, sequence);
CREATE INDEX IF NOT EXISTS idx_shipments_plan ON shipments (load_plan_id, stop_sequence);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_idempotency_expiry ON idempotency_records (expires_at)
	WHERE status <> 'in_flight';
`

// CreateSchema applies the full warehouse schema to the test database.
func CreateSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

// ResetSchema truncates all tables between tests.
func ResetSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		TRUNCATE idempotency_records, inventory_records, threshold_rules,
			inventory_movements, pick_items, picks, fulfillment_items,
			order_fulfillments, shipments, load_plans, carriers,
			warehouse_users, notifications
	`)
	return err
}
