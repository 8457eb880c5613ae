// Package nvparam stores the device's calibrated parameters in a flat
// EEPROM image guarded by a schema checksum.
//
// Layout: bytes [0..1] hold the checksum, followed by one little-endian
// int16 per parameter in table order.
package nvparam

import "errors"

// Value is the stored representation of a parameter.
type Value = int16

// Index identifies a parameter by its position in the table.
// The position is also its persistence slot, so never reorder the table.
type Index int

const (
	PowerThreshold Index = iota
	RestartInAutoMode
	KeepOnAfter
	FFTToWattRatio
	CenterFrequency
)

// Param describes one entry of the parameter table.
type Param struct {
	Name    string
	Label   string // shown by the console
	Min     Value  // inclusive
	Max     Value  // inclusive
	Default Value
}

// Table is the parameter schema of the dust extractor relay.
var Table = []Param{
	// Must stay above the switch-off hysteresis of the control logic.
	{Name: "powerThreshold", Label: "Turn on min power (watts)", Min: 30, Max: 9999, Default: 50},
	{Name: "restartInAutoMode", Label: "Reset mode (1=auto, 0=off)", Min: 0, Max: 1, Default: 1},
	{Name: "keepOnAfter", Label: "Post delay (seconds)", Min: 0, Max: 99, Default: 5},
	// Power units per 1000 estimator units. Scale by the power factor to
	// correct readings, e.g. +10% turns 3380 into 3718.
	{Name: "fftToWattRatio", Label: "Calibration", Min: 1, Max: 32767, Default: 3380},
	{Name: "centerFrequency", Label: "Center frequency (Hz)", Min: 40, Max: 70, Default: 50},
}

var (
	// ErrIndexOutOfRange is returned for an index outside the table.
	ErrIndexOutOfRange = errors.New("parameter index out of range")
	// ErrValueTooLarge is returned when a value exceeds the parameter max.
	ErrValueTooLarge = errors.New("value too large")
	// ErrValueTooSmall is returned when a value is below the parameter min.
	ErrValueTooSmall = errors.New("value too small")
)

const (
	checksumAddr = 0
	valuesAddr   = 2
	valueStride  = 2
)

func valueAddr(i Index) int {
	return valuesAddr + valueStride*int(i)
}

// ImageSize returns the number of EEPROM bytes a table occupies.
func ImageSize(table []Param) int {
	return valuesAddr + valueStride*len(table)
}
