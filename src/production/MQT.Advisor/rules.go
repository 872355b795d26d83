package advisor

import (
	"fmt"

	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
)

// Rule is one entry of the ordered advisory chain
type Rule struct {
	Name    string
	Result  mqtmodels.AdvisorResult
	Matches func(r *mqtmodels.Reading, t mqtmodels.Thresholds) bool
	Title   func(r *mqtmodels.Reading) string
	Action  func(r *mqtmodels.Reading) string
}

// Rules returns the advisory chain in priority order; the first match wins.
// Irrigation need outranks everything, and every ALERTA shares one message.
func Rules() []Rule {
	return []Rule{
		{
			Name:   "soil-dry",
			Result: mqtmodels.AdvisorCritical,
			Matches: func(r *mqtmodels.Reading, t mqtmodels.Thresholds) bool {
				return *r.SoilHumidity < *t.MinSoilHumidity
			},
			Title: func(r *mqtmodels.Reading) string {
				return fmt.Sprintf("CRITICA: riesgo de sequia, humedad de suelo en %d%%.", *r.SoilHumidity)
			},
			Action: func(*mqtmodels.Reading) string {
				return "Verifique la planta inmediatamente y active el riego. Revise si hay fallas en la bomba."
			},
		},
		alert("heat", func(r *mqtmodels.Reading, t mqtmodels.Thresholds) bool { return *r.TempC > *t.MaxTempC }),
		alert("cold", func(r *mqtmodels.Reading, t mqtmodels.Thresholds) bool { return *r.TempC < *t.MinTempC }),
		alert("light-excess", func(r *mqtmodels.Reading, t mqtmodels.Thresholds) bool { return *r.LightLux > *t.MaxLightLux }),
		alert("soil-waterlogged", func(r *mqtmodels.Reading, t mqtmodels.Thresholds) bool {
			return *r.SoilHumidity > *t.MaxSoilHumidity
		}),
		alert("air-humid", func(r *mqtmodels.Reading, t mqtmodels.Thresholds) bool {
			return *r.AmbientHumidity > *t.MaxAmbientHumidity
		}),
		alert("air-dry", func(r *mqtmodels.Reading, t mqtmodels.Thresholds) bool {
			return *r.AmbientHumidity < *t.MinAmbientHumidity
		}),
		{
			Name:   "light-low",
			Result: mqtmodels.AdvisorRecommendation,
			Matches: func(r *mqtmodels.Reading, t mqtmodels.Thresholds) bool {
				return *r.LightLux < *t.MinLightLux
			},
			Title: func(r *mqtmodels.Reading) string {
				return fmt.Sprintf("RECOMENDACION: nivel de luz bajo (%d lux).", *r.LightLux)
			},
			Action: func(*mqtmodels.Reading) string {
				return "Considere mover la planta a un lugar con mejor iluminacion."
			},
		},
	}
}

func alert(name string, matches func(r *mqtmodels.Reading, t mqtmodels.Thresholds) bool) Rule {
	return Rule{
		Name:    name,
		Result:  mqtmodels.AdvisorAlert,
		Matches: matches,
		Title: func(*mqtmodels.Reading) string {
			return "ALERTA: condiciones ambientales o de suelo fuera de rango."
		},
		Action: func(r *mqtmodels.Reading) string {
			return fmt.Sprintf("Metricas actuales: Temp: %.1f°C, Hum.Amb: %d%%, Hum.Suelo: %d%%, Luz: %d lux.",
				*r.TempC, *r.AmbientHumidity, *r.SoilHumidity, *r.LightLux)
		},
	}
}
