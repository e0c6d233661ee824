package types

import (
	"fmt"
	"time"
)

// Reading is a single timestamped temperature/humidity sample.
// Temperature and Humidity carry the raw 20-bit sensor register values;
// pkg/sensor owns the conversion to physical units.
type Reading struct {
	Timestamp   int64  `json:"timestamp"`
	Temperature uint32 `json:"temperature"`
	Humidity    uint32 `json:"humidity"`
}

// Time returns the sample time in the local timezone.
func (r Reading) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// Date formats the sample day the way the reading table displays it.
func (r Reading) Date() string {
	return r.Time().Format("02-Jan-2006")
}

// TableRow renders one line of the temperature/humidity table: the
// date followed by the raw register values in hex.
func (r Reading) TableRow() string {
	return fmt.Sprintf("%s     %08X %08X", r.Date(), r.Temperature, r.Humidity)
}

// ScanRequest bounds a range scan over the store. Start is inclusive,
// End is exclusive.
type ScanRequest struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}
