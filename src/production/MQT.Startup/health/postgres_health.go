package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
)

// ConnectPostgres opens and pings the database described by cfg.Store.Postgres
func ConnectPostgres(ctx context.Context, cfg *config.GatewayConfig) (*sql.DB, error) {
	pg := cfg.Store.Postgres
	if pg.User == "" {
		return nil, fmt.Errorf("POSTGRES_USER environment variable not set")
	}
	if pg.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD environment variable not set")
	}

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %v", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %v", err)
	}

	maxConns := pg.MaxConns
	if maxConns <= 0 {
		maxConns = 25
	}
	minConns := pg.MinConns
	if minConns <= 0 {
		minConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// CreateTables creates the gateway schema if it does not exist
func CreateTables(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	createBrokersTable := `
		CREATE TABLE IF NOT EXISTS mqtt_brokers (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			host        TEXT NOT NULL,
			port        INTEGER NOT NULL,
			is_active   BOOLEAN NOT NULL DEFAULT true,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	createDevicesTable := `
		CREATE TABLE IF NOT EXISTS plant_devices (
			id                    TEXT PRIMARY KEY,
			owner_id              TEXT,
			broker_id             TEXT,
			plant_id              TEXT NOT NULL,
			mqtt_password         TEXT,
			mac_address           TEXT,
			name                  TEXT,
			description           TEXT,
			topic                 TEXT,
			is_active             BOOLEAN NOT NULL DEFAULT false,
			min_ambient_humidity  INTEGER,
			max_ambient_humidity  INTEGER,
			min_soil_humidity     INTEGER,
			max_soil_humidity     INTEGER,
			min_temp_c            DOUBLE PRECISION,
			max_temp_c            DOUBLE PRECISION,
			min_light_lux         INTEGER,
			max_light_lux         INTEGER,
			last_data_received    TIMESTAMPTZ,
			created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	createReadingsTable := `
		CREATE TABLE IF NOT EXISTS readings (
			id                TEXT PRIMARY KEY,
			plant_id          TEXT NOT NULL,
			owner_id          TEXT,
			ts                TIMESTAMPTZ NOT NULL,
			temp_c            DOUBLE PRECISION,
			ambient_humidity  INTEGER,
			soil_humidity     INTEGER,
			light_lux         INTEGER,
			qc_status         TEXT NOT NULL,
			advisor_result    TEXT,
			received_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	// MAC uniqueness ignores NULLs; plant id uniqueness only binds active devices
	createIndexes := `
		CREATE UNIQUE INDEX IF NOT EXISTS uniq_plant_devices_mac ON plant_devices (mac_address);
		CREATE UNIQUE INDEX IF NOT EXISTS uniq_plant_devices_active_plant ON plant_devices (plant_id) WHERE is_active;
		CREATE INDEX IF NOT EXISTS idx_plant_devices_owner ON plant_devices (owner_id);
		CREATE INDEX IF NOT EXISTS idx_mqtt_brokers_host ON mqtt_brokers (host);
		CREATE INDEX IF NOT EXISTS idx_readings_plant_qc_ts_desc ON readings (plant_id, qc_status, ts DESC);
		CREATE INDEX IF NOT EXISTS idx_readings_plant_ts_desc ON readings (plant_id, ts DESC);
	`

	queries := []string{
		createBrokersTable,
		createDevicesTable,
		createReadingsTable,
		createIndexes,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %v", err)
		}
	}

	return nil
}

// PingPostgres checks if the PostgreSQL connection is healthy
func PingPostgres(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.PingContext(ctx)
}
