package logic

// Evaluate maps a reading to actuator intents.
//
// The fan runs while gas concentration is BELOW the threshold; that polarity is
// what the deployed firmware does and is kept as-is. Evaluate must run every
// cycle, including while the valve is open, so a wetter reading can close it.
func Evaluate(r SensorReading, th Thresholds) ActuatorIntent {
	return ActuatorIntent{
		FanOn:              r.GasConcentration < th.GasPPM,
		IndicatorOn:        th.IndicatorEnabled && (r.TemperatureC > th.TemperatureC || r.HumidityPct > th.HumidityPct),
		ValveOpenRequested: r.MoisturePct <= th.MoisturePct,
	}
}

// Resolve assembles the outputs for a cycle from the intent and the valve timer's decision.
func Resolve(intent ActuatorIntent, valveOpen bool) ActuatorOutputs {
	return ActuatorOutputs{
		FanOn:       intent.FanOn,
		IndicatorOn: intent.IndicatorOn,
		ValveOpen:   valveOpen,
	}
}
