package advisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]mqtmodels.NotificationMessage
	err  error
}

func (n *recordingNotifier) SendToUser(ctx context.Context, userID string, msg mqtmodels.NotificationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = make(map[string][]mqtmodels.NotificationMessage)
	}
	n.sent[userID] = append(n.sent[userID], msg)
	return n.err
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

// soil 30..80, temp 10..35, light 100..5000, ambient 40..70
func testDevice() *mqtmodels.PlantDevice {
	return &mqtmodels.PlantDevice{
		PlantID: "PNT-ABC123",
		OwnerID: "user-1",
		Active:  true,
		Thresholds: mqtmodels.Thresholds{
			MinSoilHumidity:    intp(30),
			MaxSoilHumidity:    intp(80),
			MinTempC:           floatp(10),
			MaxTempC:           floatp(35),
			MinLightLux:        intp(100),
			MaxLightLux:        intp(5000),
			MinAmbientHumidity: intp(40),
			MaxAmbientHumidity: intp(70),
		},
	}
}

func reading(soil int, temp float64, light, ambient int) *mqtmodels.Reading {
	return &mqtmodels.Reading{
		PlantID:         "PNT-ABC123",
		Timestamp:       time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		SoilHumidity:    intp(soil),
		TempC:           floatp(temp),
		LightLux:        intp(light),
		AmbientHumidity: intp(ambient),
		QcStatus:        mqtmodels.QcValid,
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		reading *mqtmodels.Reading
		want    mqtmodels.AdvisorResult
	}{
		{"dry soil", reading(25, 20, 1000, 50), mqtmodels.AdvisorCritical},
		{"heat", reading(50, 40, 1000, 50), mqtmodels.AdvisorAlert},
		{"cold", reading(50, 5, 1000, 50), mqtmodels.AdvisorAlert},
		{"too much light", reading(50, 20, 6000, 50), mqtmodels.AdvisorAlert},
		{"waterlogged", reading(90, 20, 1000, 50), mqtmodels.AdvisorAlert},
		{"humid air", reading(50, 20, 1000, 85), mqtmodels.AdvisorAlert},
		{"dry air", reading(50, 20, 1000, 20), mqtmodels.AdvisorAlert},
		{"low light", reading(50, 20, 50, 50), mqtmodels.AdvisorRecommendation},
		{"all fine", reading(50, 20, 1000, 50), mqtmodels.AdvisorInfo},
		{"dry soil outranks heat", reading(10, 45, 50, 90), mqtmodels.AdvisorCritical},
		{"alert outranks low light", reading(50, 40, 50, 50), mqtmodels.AdvisorAlert},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(&recordingNotifier{}, logger.NewNop())
			got := e.Evaluate(context.Background(), tt.reading, testDevice())
			assert.Equal(t, tt.want, got.AdvisorResult)
		})
	}
}

func TestEvaluate_IncompleteThresholdsFailSafe(t *testing.T) {
	notifier := &recordingNotifier{}
	e := NewEvaluator(notifier, logger.NewNop())
	device := testDevice()
	device.MaxAmbientHumidity = nil

	got := e.Evaluate(context.Background(), reading(5, 50, 1, 99), device)

	assert.Equal(t, mqtmodels.AdvisorInfo, got.AdvisorResult)
	assert.Empty(t, notifier.sent)
}

func TestEvaluate_Notifications(t *testing.T) {
	notifier := &recordingNotifier{}
	e := NewEvaluator(notifier, logger.NewNop())
	ctx := context.Background()

	e.Evaluate(ctx, reading(25, 20, 1000, 50), testDevice())
	e.Evaluate(ctx, reading(50, 40, 1000, 50), testDevice())
	e.Evaluate(ctx, reading(50, 20, 50, 50), testDevice())
	e.Evaluate(ctx, reading(50, 20, 1000, 50), testDevice())

	sent := notifier.sent["user-1"]
	require.Len(t, sent, 3, "INFO never notifies")

	assert.Equal(t, mqtmodels.AdvisorCritical, sent[0].Type)
	assert.Contains(t, sent[0].Title, "25%")
	assert.Equal(t, "PNT-ABC123", sent[0].PlantID)

	assert.Equal(t, mqtmodels.AdvisorAlert, sent[1].Type)
	assert.Contains(t, sent[1].Action, "Temp: 40.0°C")

	assert.Equal(t, mqtmodels.AdvisorRecommendation, sent[2].Type)
	assert.Contains(t, sent[2].Title, "50 lux")
}

func TestEvaluate_NotifierFailureIsNotFatal(t *testing.T) {
	e := NewEvaluator(&recordingNotifier{err: assert.AnError}, logger.NewNop())

	got := e.Evaluate(context.Background(), reading(25, 20, 1000, 50), testDevice())
	assert.Equal(t, mqtmodels.AdvisorCritical, got.AdvisorResult)
}

func TestEvaluate_UnownedDeviceSkipsNotification(t *testing.T) {
	notifier := &recordingNotifier{}
	e := NewEvaluator(notifier, logger.NewNop())
	device := testDevice()
	device.OwnerID = ""

	got := e.Evaluate(context.Background(), reading(25, 20, 1000, 50), device)
	assert.Equal(t, mqtmodels.AdvisorCritical, got.AdvisorResult)
	assert.Empty(t, notifier.sent)
}

func TestRulesOrder(t *testing.T) {
	names := make([]string, 0)
	for _, r := range Rules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"soil-dry", "heat", "cold", "light-excess", "soil-waterlogged", "air-humid", "air-dry", "light-low",
	}, names)
}
