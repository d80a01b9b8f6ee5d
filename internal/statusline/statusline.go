// Package statusline writes and parses the human-readable status stream:
// one "<Label>: <value>" line per metric per cycle.
package statusline

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// Labels as they appear on the wire.
const (
	LabelTemperature = "Temperature"
	LabelHumidity    = "Humidity"
	LabelMoisture    = "Moisture"
	LabelGas         = "CO2"
)

const separator = ": "

// Write emits one block of status lines for r.
func Write(w io.Writer, r logic.SensorReading) error {
	bw := bufio.NewWriter(w)
	for _, f := range []struct {
		label string
		v     float64
	}{
		{LabelTemperature, r.TemperatureC},
		{LabelHumidity, r.HumidityPct},
		{LabelMoisture, r.MoisturePct},
		{LabelGas, r.GasConcentration},
	} {
		if _, err := fmt.Fprintf(bw, "%s%s%s\n", f.label, separator, formatValue(f.v)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ParseLine splits a status line into label and value.
// ok is false when the line has no separator. A value that does not parse is
// returned as NaN with ok still true.
func ParseLine(line string) (label string, value float64, ok bool) {
	line = strings.TrimSpace(line)
	label, raw, found := strings.Cut(line, separator)
	if !found || label == "" {
		return "", 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return label, math.NaN(), true
	}
	return label, v, true
}

// Decoder assembles readings from a status stream.
type Decoder struct {
	sc      *bufio.Scanner
	pending map[string]float64
}

// NewDecoder reads status lines from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		sc:      bufio.NewScanner(r),
		pending: make(map[string]float64, 4),
	}
}

// Next blocks until one value for each of the four labels has been seen and
// returns them as a reading. A later value for the same label replaces an
// earlier one. Unknown labels and malformed lines are skipped.
// Returns io.EOF when the stream ends before a block completes.
func (d *Decoder) Next() (logic.SensorReading, error) {
	for d.sc.Scan() {
		label, v, ok := ParseLine(d.sc.Text())
		if !ok {
			continue
		}
		switch label {
		case LabelTemperature, LabelHumidity, LabelMoisture, LabelGas:
			d.pending[label] = v
		default:
			continue
		}
		if len(d.pending) == 4 {
			r := logic.SensorReading{
				TemperatureC:     d.pending[LabelTemperature],
				HumidityPct:      d.pending[LabelHumidity],
				MoisturePct:      d.pending[LabelMoisture],
				GasConcentration: d.pending[LabelGas],
			}
			clear(d.pending)
			return r, nil
		}
	}
	if err := d.sc.Err(); err != nil {
		return logic.SensorReading{}, err
	}
	return logic.SensorReading{}, io.EOF
}
