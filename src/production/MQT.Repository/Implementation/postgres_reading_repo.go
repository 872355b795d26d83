package implementation

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
)

type PostgresReadingRepository struct {
	db *sql.DB
}

func NewPostgresReadingRepository(db *sql.DB) *PostgresReadingRepository {
	return &PostgresReadingRepository{db: db}
}

const readingColumns = `id, plant_id, owner_id, ts, temp_c, ambient_humidity, soil_humidity, light_lux,
	qc_status, advisor_result, received_at`

func scanReading(row interface{ Scan(...interface{}) error }) (*mqtmodels.Reading, error) {
	var (
		rd                      mqtmodels.Reading
		owner, advisor          sql.NullString
		temp                    sql.NullFloat64
		ambient, soil, lightLux sql.NullInt64
		qc                      string
	)
	err := row.Scan(&rd.ID, &rd.PlantID, &owner, &rd.Timestamp, &temp, &ambient, &soil, &lightLux,
		&qc, &advisor, &rd.ReceivedAt)
	if err != nil {
		return nil, err
	}
	rd.OwnerID = owner.String
	rd.TempC = floatPtr(temp)
	rd.AmbientHumidity = intPtr(ambient)
	rd.SoilHumidity = intPtr(soil)
	rd.LightLux = intPtr(lightLux)
	rd.QcStatus = mqtmodels.QcStatus(qc)
	rd.AdvisorResult = mqtmodels.AdvisorResult(advisor.String)
	return &rd, nil
}

func (r *PostgresReadingRepository) Insert(ctx context.Context, rd *mqtmodels.Reading) error {
	if rd.ID == "" {
		rd.ID = uuid.New().String()
	}

	query := `
		INSERT INTO readings (` + readingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query, rd.ID, rd.PlantID, nullString(rd.OwnerID), rd.Timestamp,
		nullFloat(rd.TempC), nullInt(rd.AmbientHumidity), nullInt(rd.SoilHumidity), nullInt(rd.LightLux),
		string(rd.QcStatus), nullString(string(rd.AdvisorResult)), rd.ReceivedAt)
	return mapPostgresError(err)
}

func (r *PostgresReadingRepository) LatestValid(ctx context.Context, plantID string) (*mqtmodels.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings
		WHERE plant_id = $1 AND qc_status = $2
		ORDER BY ts DESC LIMIT 1`
	rd, err := scanReading(r.db.QueryRowContext(ctx, query, plantID, string(mqtmodels.QcValid)))
	return rd, mapPostgresError(err)
}

func (r *PostgresReadingRepository) ListByPlant(ctx context.Context, plantID string, page, pageSize int) (*interfaces.PaginationResult, error) {
	page, pageSize = normalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings WHERE plant_id = $1`, plantID).Scan(&total); err != nil {
		return nil, err
	}

	query := `SELECT ` + readingColumns + ` FROM readings WHERE plant_id = $1 ORDER BY ts DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, plantID, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]mqtmodels.Reading, 0)
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *rd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &interfaces.PaginationResult{Items: readings, Total: total}
	if page*pageSize < total {
		next := page + 1
		result.NextPage = &next
	}
	return result, nil
}
