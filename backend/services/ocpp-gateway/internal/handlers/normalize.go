package handlers

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

var emptySampledValues = json.RawMessage(`[]`)

func toSample(mv protocol.MeterValue) models.MeterSample {
	raw := mv.SampledValue
	if len(raw) == 0 || string(raw) == "null" {
		raw = emptySampledValues
	}
	return models.MeterSample{Timestamp: mv.Timestamp.UTC(), RawValues: raw}
}

// energyRegister returns the last Energy.Active.Import.Register reading in Wh, if any.
func energyRegister(dialect protocol.Dialect, values []protocol.MeterValue) *float64 {
	var result *float64
	for _, mv := range values {
		var (
			v  float64
			ok bool
		)
		switch dialect {
		case protocol.DialectV16:
			v, ok = energyFrom16(mv.SampledValue)
		case protocol.DialectV2x:
			v, ok = energyFrom2x(mv.SampledValue)
		}
		if ok {
			reading := v
			result = &reading
		}
	}
	return result
}

func isEnergyRegister(measurand, phase string) bool {
	if phase != "" {
		return false
	}
	return measurand == "" || measurand == protocol.MeasurandEnergyImportRegister
}

func energyFrom16(raw json.RawMessage) (float64, bool) {
	var sampled []protocol.SampledValue16
	if err := json.Unmarshal(raw, &sampled); err != nil {
		return 0, false
	}
	for _, sv := range sampled {
		if !isEnergyRegister(sv.Measurand, sv.Phase) {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(sv.Value), 64)
		if err != nil {
			continue
		}
		return toWattHours(value, sv.Unit, 0), true
	}
	return 0, false
}

func energyFrom2x(raw json.RawMessage) (float64, bool) {
	var sampled []protocol.SampledValue2x
	if err := json.Unmarshal(raw, &sampled); err != nil {
		return 0, false
	}
	for _, sv := range sampled {
		if !isEnergyRegister(sv.Measurand, sv.Phase) {
			continue
		}
		unit, multiplier := "", 0
		if sv.UnitOfMeasure != nil {
			unit, multiplier = sv.UnitOfMeasure.Unit, sv.UnitOfMeasure.Multiplier
		}
		return toWattHours(sv.Value, unit, multiplier), true
	}
	return 0, false
}

func toWattHours(value float64, unit string, multiplier int) float64 {
	if multiplier != 0 {
		value *= math.Pow10(multiplier)
	}
	if strings.EqualFold(unit, "kWh") {
		value *= 1000
	}
	return value
}
