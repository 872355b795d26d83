package mqtmodels

import "time"

// Thresholds are the per-device limits the advisor evaluates readings against.
// A nil field means the limit was never configured.
type Thresholds struct {
	MinAmbientHumidity *int     `bson:"minAmbientHumidity,omitempty" json:"minAmbientHumidity,omitempty"`
	MaxAmbientHumidity *int     `bson:"maxAmbientHumidity,omitempty" json:"maxAmbientHumidity,omitempty"`
	MinSoilHumidity    *int     `bson:"minSoilHumidity,omitempty" json:"minSoilHumidity,omitempty"`
	MaxSoilHumidity    *int     `bson:"maxSoilHumidity,omitempty" json:"maxSoilHumidity,omitempty"`
	MinTempC           *float64 `bson:"minTempC,omitempty" json:"minTempC,omitempty"`
	MaxTempC           *float64 `bson:"maxTempC,omitempty" json:"maxTempC,omitempty"`
	MinLightLux        *int     `bson:"minLightLux,omitempty" json:"minLightLux,omitempty"`
	MaxLightLux        *int     `bson:"maxLightLux,omitempty" json:"maxLightLux,omitempty"`
}

// Complete reports whether all eight limits are set
func (t Thresholds) Complete() bool {
	return t.MinAmbientHumidity != nil && t.MaxAmbientHumidity != nil &&
		t.MinSoilHumidity != nil && t.MaxSoilHumidity != nil &&
		t.MinTempC != nil && t.MaxTempC != nil &&
		t.MinLightLux != nil && t.MaxLightLux != nil
}

// PlantDevice is a physical sensor unit. It is keyed by MAC until claimed,
// and by PlantID afterwards.
type PlantDevice struct {
	ID          string `bson:"_id,omitempty" json:"id"`
	OwnerID     string `bson:"ownerId,omitempty" json:"owner_id,omitempty"`
	BrokerID    string `bson:"brokerId,omitempty" json:"broker_id,omitempty"`
	PlantID     string `bson:"plantId" json:"plant_id"`
	Password    string `bson:"mqttPassword,omitempty" json:"-"`
	MacAddress  string `bson:"macAddress,omitempty" json:"mac_address,omitempty"`
	Name        string `bson:"name,omitempty" json:"name,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Topic       string `bson:"topic,omitempty" json:"topic,omitempty"`
	Active      bool   `bson:"isActive" json:"is_active"`

	Thresholds `bson:",inline"`

	LastDataReceived *time.Time `bson:"lastDataReceived,omitempty" json:"last_data_received,omitempty"`
	CreatedAt        time.Time  `bson:"createdAt" json:"created_at"`
}

// Claimed reports whether a user owns the device
func (d *PlantDevice) Claimed() bool {
	return d.OwnerID != ""
}
