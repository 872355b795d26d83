package mqtmodels

import (
	"time"

	topics "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Topics"
)

// Broker is an MQTT broker the gateway should hold a connection to while Active
type Broker struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Host      string    `bson:"host" json:"host"`
	Port      int       `bson:"port" json:"port"`
	Active    bool      `bson:"isActive" json:"is_active"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// URL returns the dial address used as the key of the connection table
func (b Broker) URL() string {
	return topics.BrokerURL(b.Host, b.Port)
}
