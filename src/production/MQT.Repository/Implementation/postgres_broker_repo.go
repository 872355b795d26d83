package implementation

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
)

type PostgresBrokerRepository struct {
	db *sql.DB
}

func NewPostgresBrokerRepository(db *sql.DB) *PostgresBrokerRepository {
	return &PostgresBrokerRepository{db: db}
}

const brokerColumns = `id, name, host, port, is_active, created_at`

func scanBroker(row interface{ Scan(...interface{}) error }) (*mqtmodels.Broker, error) {
	var b mqtmodels.Broker
	if err := row.Scan(&b.ID, &b.Name, &b.Host, &b.Port, &b.Active, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PostgresBrokerRepository) FindActive(ctx context.Context) ([]mqtmodels.Broker, error) {
	query := `SELECT ` + brokerColumns + ` FROM mqtt_brokers WHERE is_active = true ORDER BY host, port`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brokers := make([]mqtmodels.Broker, 0)
	for rows.Next() {
		b, err := scanBroker(rows)
		if err != nil {
			return nil, err
		}
		brokers = append(brokers, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return brokers, nil
}

func (r *PostgresBrokerRepository) FindByID(ctx context.Context, id string) (*mqtmodels.Broker, error) {
	query := `SELECT ` + brokerColumns + ` FROM mqtt_brokers WHERE id = $1`
	b, err := scanBroker(r.db.QueryRowContext(ctx, query, id))
	return b, mapPostgresError(err)
}

func (r *PostgresBrokerRepository) FindByHost(ctx context.Context, host string) (*mqtmodels.Broker, error) {
	query := `SELECT ` + brokerColumns + ` FROM mqtt_brokers WHERE host = $1 ORDER BY is_active DESC LIMIT 1`
	b, err := scanBroker(r.db.QueryRowContext(ctx, query, host))
	return b, mapPostgresError(err)
}

func (r *PostgresBrokerRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mqtt_brokers`).Scan(&n)
	return n, err
}

func (r *PostgresBrokerRepository) Save(ctx context.Context, broker *mqtmodels.Broker) error {
	if broker.ID == "" {
		broker.ID = uuid.New().String()
	}
	if broker.CreatedAt.IsZero() {
		broker.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO mqtt_brokers (id, name, host, port, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, host = EXCLUDED.host, port = EXCLUDED.port,
		              is_active = EXCLUDED.is_active
	`
	_, err := r.db.ExecContext(ctx, query, broker.ID, broker.Name, broker.Host, broker.Port,
		broker.Active, broker.CreatedAt)
	return mapPostgresError(err)
}
