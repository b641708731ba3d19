package runner

import (
	"strings"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/signal"
)

// Mode selects how a scenario's capture is judged.
type Mode int

const (
	// ModeJitter analyzes transition timing against the jitter budget.
	ModeJitter Mode = iota
	// ModeThroughput only checks the achieved read rate.
	ModeThroughput
)

func (m Mode) String() string {
	if m == ModeThroughput {
		return "throughput"
	}
	return "jitter"
}

// Scenario is one named measurement.
type Scenario struct {
	Name        string
	Description string
	Mode        Mode
	// Source is the signal generator for jitter scenarios. Throughput
	// scenarios read the DAQ task directly.
	Source signal.Kind
	// Irregular pauses a random time after every read.
	Irregular bool
}

var scenarios = []Scenario{
	{
		Name:        "signal-jitter",
		Description: "Clean 0.5 Hz square wave",
		Mode:        ModeJitter,
		Source:      signal.KindSquare,
	},
	{
		Name:        "signal-jitter-noise",
		Description: "Square wave with every edge offset by up to twice the jitter budget",
		Mode:        ModeJitter,
		Source:      signal.KindJitter,
	},
	{
		Name:        "signal-randomness",
		Description: "Square wave with spurious random flips",
		Mode:        ModeJitter,
		Source:      signal.KindRandomness,
	},
	{
		Name:        "signal-single-sample-noise",
		Description: "Square wave with single-read glitches",
		Mode:        ModeJitter,
		Source:      signal.KindFluke,
	},
	{
		Name:        "daq-sampling",
		Description: "Read rate of the DAQ digital line",
		Mode:        ModeThroughput,
		Source:      signal.KindDAQ,
	},
	{
		Name:        "daq-sampling-irregular",
		Description: "Read rate with a random pause after every read",
		Mode:        ModeThroughput,
		Source:      signal.KindDAQ,
		Irregular:   true,
	},
}

// Scenarios lists every known scenario in suite order.
func Scenarios() []Scenario {
	return append([]Scenario(nil), scenarios...)
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, sc := range scenarios {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

// ForSource returns the regular scenario driven by kind.
func ForSource(kind signal.Kind) (Scenario, error) {
	for _, sc := range scenarios {
		if sc.Source == kind && !sc.Irregular {
			return sc, nil
		}
	}
	return Scenario{}, errors.New().WithData(errors.ErrInvalidScenario, string(kind))
}

// Select resolves configured names into scenarios, keeping suite order and
// dropping duplicates. "all" selects the whole suite.
func Select(names []string) ([]Scenario, error) {
	want := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "all" {
			return Scenarios(), nil
		}
		if _, ok := Lookup(name); !ok {
			return nil, errors.New().WithData(errors.ErrInvalidScenario, name)
		}
		want[name] = true
	}

	if len(want) == 0 {
		return nil, errors.New().WithData(errors.ErrInvalidScenario, "no scenarios selected")
	}

	var out []Scenario
	for _, sc := range scenarios {
		if want[sc.Name] {
			out = append(out, sc)
		}
	}
	return out, nil
}
