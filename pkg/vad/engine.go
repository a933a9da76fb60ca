package vad

import (
	"fmt"
	"strings"
)

// Engine names a detector implementation.
type Engine string

const (
	EngineEnergy   Engine = "energy"
	EngineSilero   Engine = "silero"
	EngineSileroGo Engine = "silero-go"
)

// ParseEngine accepts an engine name case-insensitively; empty means energy.
func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return EngineEnergy, nil
	case EngineEnergy, EngineSilero, EngineSileroGo:
		return e, nil
	default:
		return "", fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, s)
	}
}

// NewEngine builds the detector for engine. cfg is ignored by the energy
// engine.
func NewEngine(engine Engine, cfg DetectorConfig) (DetectorInterface, error) {
	switch engine {
	case EngineEnergy, "":
		return NewEnergyDetector(), nil
	case EngineSilero:
		d, err := NewDetector(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	case EngineSileroGo:
		g, err := NewSpeechGate(cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, engine)
	}
}
