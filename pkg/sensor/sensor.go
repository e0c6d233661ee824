// Package sensor provides the reading sources that feed the store: a
// seeded simulator standing in for the temperature/humidity instrument,
// and an MQTT ingestor for live deployments.
package sensor

import (
	"math/rand"
)

// rawScale is the full-scale value of the 20-bit sensor registers.
const rawScale = 1 << 20

// Default simulation ranges, matching the instrument's bench setup.
const (
	DefaultTempMinF = 50.0
	DefaultTempMaxF = 85.0
	DefaultHumMin   = 40.0
	DefaultHumMax   = 85.0
)

// Source produces one instrument sample per call: the raw temperature
// and humidity register values. Sources never fail.
type Source interface {
	Next() (temperature, humidity uint32)
}

// SimSource is a deterministic stand-in for the real instrument. It
// draws uniformly from configured physical ranges and encodes them the
// way the sensor registers would. The same seed replays the same
// samples.
type SimSource struct {
	rng      *rand.Rand
	tempMinF float64
	tempMaxF float64
	humMin   float64
	humMax   float64
}

// NewSimSource returns a simulator drawing temperatures from
// [tempMinF, tempMaxF] degrees Fahrenheit and relative humidity from
// [humMin, humMax] percent.
func NewSimSource(seed int64, tempMinF, tempMaxF, humMin, humMax float64) *SimSource {
	return &SimSource{
		rng:      rand.New(rand.NewSource(seed)),
		tempMinF: tempMinF,
		tempMaxF: tempMaxF,
		humMin:   humMin,
		humMax:   humMax,
	}
}

// Next implements Source.
func (s *SimSource) Next() (uint32, uint32) {
	tempF := s.tempMinF + s.rng.Float64()*(s.tempMaxF-s.tempMinF)
	hum := s.humMin + s.rng.Float64()*(s.humMax-s.humMin)
	return FahrenheitToRaw(tempF), PercentToRaw(hum)
}

// FahrenheitToRaw encodes a temperature as the 20-bit register value.
// The register maps [-50C, 150C] onto the full scale.
func FahrenheitToRaw(f float64) uint32 {
	c := (f - 32.0) / 1.8
	return clampRaw((c + 50.0) / 200.0 * rawScale)
}

// RawToFahrenheit decodes a raw temperature register value.
func RawToFahrenheit(raw uint32) float64 {
	c := float64(raw)/rawScale*200.0 - 50.0
	return c*1.8 + 32.0
}

// PercentToRaw encodes relative humidity as the 20-bit register value.
func PercentToRaw(pct float64) uint32 {
	return clampRaw(pct / 100.0 * rawScale)
}

// RawToPercent decodes a raw humidity register value.
func RawToPercent(raw uint32) float64 {
	return float64(raw) / rawScale * 100.0
}

func clampRaw(v float64) uint32 {
	if v < 0 {
		return 0
	}
	if v > rawScale-1 {
		return rawScale - 1
	}
	return uint32(v)
}
