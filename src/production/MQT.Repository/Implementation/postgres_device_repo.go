package implementation

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
)

type PostgresDeviceRepository struct {
	db *sql.DB
}

func NewPostgresDeviceRepository(db *sql.DB) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

const deviceColumns = `id, owner_id, broker_id, plant_id, mqtt_password, mac_address, name, description,
	topic, is_active, min_ambient_humidity, max_ambient_humidity, min_soil_humidity, max_soil_humidity,
	min_temp_c, max_temp_c, min_light_lux, max_light_lux, last_data_received, created_at`

func scanDevice(row interface{ Scan(...interface{}) error }) (*mqtmodels.PlantDevice, error) {
	var (
		d                                     mqtmodels.PlantDevice
		owner, broker, pass, mac, name, descr sql.NullString
		topic                                 sql.NullString
		minAmb, maxAmb, minSoil, maxSoil      sql.NullInt64
		minTemp, maxTemp                      sql.NullFloat64
		minLux, maxLux                        sql.NullInt64
		lastData                              sql.NullTime
	)
	err := row.Scan(&d.ID, &owner, &broker, &d.PlantID, &pass, &mac, &name, &descr,
		&topic, &d.Active, &minAmb, &maxAmb, &minSoil, &maxSoil,
		&minTemp, &maxTemp, &minLux, &maxLux, &lastData, &d.CreatedAt)
	if err != nil {
		return nil, err
	}

	d.OwnerID = owner.String
	d.BrokerID = broker.String
	d.Password = pass.String
	d.MacAddress = mac.String
	d.Name = name.String
	d.Description = descr.String
	d.Topic = topic.String
	d.Thresholds = mqtmodels.Thresholds{
		MinAmbientHumidity: intPtr(minAmb),
		MaxAmbientHumidity: intPtr(maxAmb),
		MinSoilHumidity:    intPtr(minSoil),
		MaxSoilHumidity:    intPtr(maxSoil),
		MinTempC:           floatPtr(minTemp),
		MaxTempC:           floatPtr(maxTemp),
		MinLightLux:        intPtr(minLux),
		MaxLightLux:        intPtr(maxLux),
	}
	d.LastDataReceived = timePtr(lastData)
	return &d, nil
}

func (r *PostgresDeviceRepository) queryOne(ctx context.Context, where string, args ...interface{}) (*mqtmodels.PlantDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM plant_devices WHERE ` + where
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, args...))
	return d, mapPostgresError(err)
}

func (r *PostgresDeviceRepository) queryMany(ctx context.Context, where string, args ...interface{}) ([]mqtmodels.PlantDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM plant_devices WHERE ` + where + ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]mqtmodels.PlantDevice, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *PostgresDeviceRepository) FindByID(ctx context.Context, id string) (*mqtmodels.PlantDevice, error) {
	return r.queryOne(ctx, `id = $1`, id)
}

func (r *PostgresDeviceRepository) FindByPlantID(ctx context.Context, plantID string) (*mqtmodels.PlantDevice, error) {
	return r.queryOne(ctx, `plant_id = $1 ORDER BY is_active DESC LIMIT 1`, plantID)
}

func (r *PostgresDeviceRepository) FindByMAC(ctx context.Context, mac string) (*mqtmodels.PlantDevice, error) {
	return r.queryOne(ctx, `mac_address = $1`, mac)
}

func (r *PostgresDeviceRepository) ExistsByPlantID(ctx context.Context, plantID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM plant_devices WHERE plant_id = $1)`, plantID).Scan(&exists)
	return exists, err
}

func (r *PostgresDeviceRepository) FindAvailable(ctx context.Context) ([]mqtmodels.PlantDevice, error) {
	return r.queryMany(ctx, `owner_id IS NULL AND mac_address IS NOT NULL`)
}

func (r *PostgresDeviceRepository) FindByOwner(ctx context.Context, ownerID string) ([]mqtmodels.PlantDevice, error) {
	return r.queryMany(ctx, `owner_id = $1`, ownerID)
}

func (r *PostgresDeviceRepository) Save(ctx context.Context, d *mqtmodels.PlantDevice) error {
	args := []interface{}{
		nullString(d.OwnerID), nullString(d.BrokerID), d.PlantID, nullString(d.Password),
		nullString(d.MacAddress), nullString(d.Name), nullString(d.Description), nullString(d.Topic), d.Active,
		nullInt(d.MinAmbientHumidity), nullInt(d.MaxAmbientHumidity),
		nullInt(d.MinSoilHumidity), nullInt(d.MaxSoilHumidity),
		nullFloat(d.MinTempC), nullFloat(d.MaxTempC),
		nullInt(d.MinLightLux), nullInt(d.MaxLightLux),
		nullTime(d.LastDataReceived),
	}

	if d.ID == "" {
		id := uuid.New().String()
		createdAt := d.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		query := `INSERT INTO plant_devices (id, owner_id, broker_id, plant_id, mqtt_password, mac_address,
			name, description, topic, is_active, min_ambient_humidity, max_ambient_humidity, min_soil_humidity,
			max_soil_humidity, min_temp_c, max_temp_c, min_light_lux, max_light_lux, last_data_received, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
		_, err := r.db.ExecContext(ctx, query, append(append([]interface{}{id}, args...), createdAt)...)
		if err != nil {
			return mapPostgresError(err)
		}
		d.ID = id
		d.CreatedAt = createdAt
		return nil
	}

	query := `UPDATE plant_devices SET owner_id = $2, broker_id = $3, plant_id = $4, mqtt_password = $5,
		mac_address = $6, name = $7, description = $8, topic = $9, is_active = $10,
		min_ambient_humidity = $11, max_ambient_humidity = $12, min_soil_humidity = $13,
		max_soil_humidity = $14, min_temp_c = $15, max_temp_c = $16, min_light_lux = $17,
		max_light_lux = $18, last_data_received = $19
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, append([]interface{}{d.ID}, args...)...)
	if err != nil {
		return mapPostgresError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (r *PostgresDeviceRepository) TouchHeartbeat(ctx context.Context, plantID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE plant_devices SET last_data_received = $2 WHERE plant_id = $1 AND is_active`,
		plantID, at.UTC())
	if err != nil {
		return mapPostgresError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}
