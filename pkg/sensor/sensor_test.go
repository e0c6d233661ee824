package sensor

import (
	"math"
	"testing"
)

func TestSimSourceDeterministic(t *testing.T) {
	a := NewSimSource(42, DefaultTempMinF, DefaultTempMaxF, DefaultHumMin, DefaultHumMax)
	b := NewSimSource(42, DefaultTempMinF, DefaultTempMaxF, DefaultHumMin, DefaultHumMax)

	for i := 0; i < 100; i++ {
		at, ah := a.Next()
		bt, bh := b.Next()
		if at != bt || ah != bh {
			t.Fatalf("sample %d diverged: (%d, %d) vs (%d, %d)", i, at, ah, bt, bh)
		}
	}
}

func TestSimSourceRanges(t *testing.T) {
	src := NewSimSource(7, 60.0, 70.0, 30.0, 50.0)

	for i := 0; i < 1000; i++ {
		tempRaw, humRaw := src.Next()

		tempF := RawToFahrenheit(tempRaw)
		if tempF < 59.9 || tempF > 70.1 {
			t.Fatalf("sample %d: temperature %.2fF outside [60, 70]", i, tempF)
		}
		hum := RawToPercent(humRaw)
		if hum < 29.9 || hum > 50.1 {
			t.Fatalf("sample %d: humidity %.2f%% outside [30, 50]", i, hum)
		}
	}
}

func TestTemperatureRoundTrip(t *testing.T) {
	for _, f := range []float64{-40.0, 0.0, 32.0, 68.5, 98.6, 120.0} {
		got := RawToFahrenheit(FahrenheitToRaw(f))
		if math.Abs(got-f) > 0.01 {
			t.Errorf("round trip %.2fF: got %.4fF", f, got)
		}
	}
}

func TestHumidityRoundTrip(t *testing.T) {
	for _, pct := range []float64{0.0, 12.5, 50.0, 85.3, 100.0} {
		got := RawToPercent(PercentToRaw(pct))
		if math.Abs(got-pct) > 0.01 {
			t.Errorf("round trip %.2f%%: got %.4f%%", pct, got)
		}
	}
}

func TestRawClamping(t *testing.T) {
	if got := PercentToRaw(150.0); got != rawScale-1 {
		t.Errorf("over-range humidity: got %d, want %d", got, rawScale-1)
	}
	if got := FahrenheitToRaw(-200.0); got != 0 {
		t.Errorf("under-range temperature: got %d, want 0", got)
	}
}
