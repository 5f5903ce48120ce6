package dsp

import "fmt"

// Quality selects the linear-phase filter length. Longer filters resolve
// lower frequencies at the cost of latency and CPU.
type Quality int

const (
	QualityLow    Quality = iota // 2048 taps
	QualityMedium                // 4096 taps
	QualityHigh                  // 8192 taps
	QualityUltra                 // 16384 taps
)

// qualityFilterLengths maps each quality preset to its filter length.
var qualityFilterLengths = map[Quality]int{
	QualityLow:    2048,
	QualityMedium: 4096,
	QualityHigh:   8192,
	QualityUltra:  16384,
}

// FilterLength returns the filter length for this quality preset.
func (q Quality) FilterLength() (int, error) {
	n, ok := qualityFilterLengths[q]
	if !ok {
		return 0, fmt.Errorf("dsp: unknown quality %d", int(q))
	}
	return n, nil
}

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	case QualityUltra:
		return "ultra"
	default:
		return fmt.Sprintf("quality(%d)", int(q))
	}
}

// ParseQuality converts a preset name to a Quality.
func ParseQuality(s string) (Quality, error) {
	switch s {
	case "low":
		return QualityLow, nil
	case "medium":
		return QualityMedium, nil
	case "high":
		return QualityHigh, nil
	case "ultra":
		return QualityUltra, nil
	default:
		return 0, fmt.Errorf("dsp: unknown quality %q", s)
	}
}
