package mqtmodels

import "time"

type QcStatus string

const (
	QcValid      QcStatus = "VALID"
	QcOutOfRange QcStatus = "OUT_OF_RANGE"
	QcRateError  QcStatus = "RATE_ERROR"
	QcError      QcStatus = "QC_ERROR"
)

type AdvisorResult string

const (
	AdvisorCritical       AdvisorResult = "CRITICA"
	AdvisorAlert          AdvisorResult = "ALERTA"
	AdvisorRecommendation AdvisorResult = "RECOMENDACION"
	AdvisorInfo           AdvisorResult = "INFO"
)

// Reading is one telemetry sample. It is stored once, whatever its QC outcome,
// and never updated afterwards.
type Reading struct {
	ID      string `bson:"_id,omitempty" json:"id,omitempty"`
	PlantID string `bson:"plantId" json:"plant_id"`
	OwnerID string `bson:"ownerId,omitempty" json:"owner_id,omitempty"`

	Timestamp       time.Time `bson:"timestamp" json:"timestamp"`
	TempC           *float64  `bson:"tempC,omitempty" json:"temp_c,omitempty"`
	AmbientHumidity *int      `bson:"ambientHumidity,omitempty" json:"ambient_humidity,omitempty"`
	SoilHumidity    *int      `bson:"soilHumidity,omitempty" json:"soil_humidity,omitempty"`
	LightLux        *int      `bson:"lightLux,omitempty" json:"light_lux,omitempty"`

	QcStatus      QcStatus      `bson:"qcStatus" json:"qc_status"`
	AdvisorResult AdvisorResult `bson:"advisorResult,omitempty" json:"advisor_result,omitempty"`
	ReceivedAt    time.Time     `bson:"receivedAt" json:"received_at"`
}
