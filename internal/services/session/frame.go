package session

import (
	"errors"
	"strconv"
	"strings"

	"github.com/LeonardoBeccarini/sensorlink/pkg/codec"
)

type frameKind int

const (
	frameUnknown frameKind = iota
	frameGas
	frameSmoke
	frameNoise
)

func (k frameKind) String() string {
	switch k {
	case frameGas:
		return "gas"
	case frameSmoke:
		return "smoke"
	case frameNoise:
		return "noise"
	}
	return "unknown"
}

const (
	gasPrefix  = "GAS:"
	smokeAlert = "ALERTA:HUMO"
	noiseAlert = "ALERTA:RUIDO"
)

type frame struct {
	kind  frameKind
	value int // decoded, gas only
}

var errNegative = errors.New("negative payload")

// parseFrame classifies one line from the device. A GAS frame whose payload
// cannot be decoded is returned as a *ProtocolError.
func parseFrame(line string) (frame, error) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, gasPrefix):
		raw := strings.TrimSpace(line[len(gasPrefix):])
		n, err := strconv.Atoi(raw)
		if err != nil {
			return frame{}, &ProtocolError{Line: line, Err: err}
		}
		if n < 0 {
			return frame{}, &ProtocolError{Line: line, Err: errNegative}
		}
		return frame{kind: frameGas, value: codec.Decode(n)}, nil
	case line == smokeAlert:
		return frame{kind: frameSmoke}, nil
	case line == noiseAlert:
		return frame{kind: frameNoise}, nil
	}
	return frame{kind: frameUnknown}, nil
}
