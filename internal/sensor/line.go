package sensor

import (
	"fmt"
	"io"
	"os"

	"github.com/sweeney/greenhouse-controller/internal/logic"
	"github.com/sweeney/greenhouse-controller/internal/statusline"
)

// LineSampler reads readings from a "<Label>: <value>" status stream, such as
// the serial output of a microcontroller running the sensor firmware.
type LineSampler struct {
	dec    *statusline.Decoder
	closer io.Closer
}

// NewLineSampler reads from r. If r is an io.Closer, Close closes it.
func NewLineSampler(r io.Reader) *LineSampler {
	s := &LineSampler{dec: statusline.NewDecoder(r)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenLineSampler opens a device or file path (for a serial port, configure the
// line speed beforehand, e.g. with stty).
func OpenLineSampler(path string) (*LineSampler, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open status stream %s: %w", path, err)
	}
	return NewLineSampler(f), nil
}

// Sample blocks until the next complete block of status lines arrives.
func (s *LineSampler) Sample() (logic.SensorReading, error) {
	r, err := s.dec.Next()
	if err != nil {
		return logic.SensorReading{}, fmt.Errorf("read status stream: %w", err)
	}
	return r, nil
}

// Close closes the underlying stream if it is closable.
func (s *LineSampler) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
