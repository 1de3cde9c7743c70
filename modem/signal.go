package modem

import (
	"errors"
	"fmt"

	"i4.energy/across/drivetest/at"
)

// SINR raw values reported by #RFSTS range over 0..250 and map to -20..30 dB.
const (
	SINRRawMin = 0
	SINRRawMax = 250
)

var errNoRadioLine = errors.New("no " + at.PrefixRFStatus + " line")

// RadioMetrics are the LTE measurements carried by an RF status line.
type RadioMetrics struct {
	RSRP    float64 `json:"rsrp"`
	RSSI    float64 `json:"rssi"`
	RSRQ    float64 `json:"rsrq"`
	SINRRaw int     `json:"sinr_raw"`
	SINRdB  int     `json:"sinr_db"`
	// Quality is the mean of the four per-metric tier scores.
	Quality float64 `json:"quality"`
}

// SINRToDB converts a raw SINR report to decibels.
func SINRToDB(raw int) (int, error) {
	if raw < SINRRawMin || raw > SINRRawMax {
		return 0, fmt.Errorf("SINR raw value %d outside %d..%d", raw, SINRRawMin, SINRRawMax)
	}
	return raw/5 - 20, nil
}

// ParseRadio extracts radio metrics from the first #RFSTS line among lines.
func ParseRadio(lines []string) (*RadioMetrics, error) {
	for _, line := range lines {
		match, ok := at.Extract(line)
		if !ok || match.Prefix != at.PrefixRFStatus {
			continue
		}

		var (
			r   RadioMetrics
			err error
		)
		if r.RSRP, err = match.Float("rsrp"); err != nil {
			return nil, err
		}
		if r.RSSI, err = match.Float("rssi"); err != nil {
			return nil, err
		}
		if r.RSRQ, err = match.Float("rsrq"); err != nil {
			return nil, err
		}
		if r.SINRRaw, err = match.Int("sinr"); err != nil {
			return nil, err
		}
		if r.SINRdB, err = SINRToDB(r.SINRRaw); err != nil {
			return nil, err
		}
		r.Quality = Quality(r.RSRP, r.RSSI, r.RSRQ, float64(r.SINRRaw))
		return &r, nil
	}
	return nil, errNoRadioLine
}

// Quality scores each metric on a 0..40 tier scale and returns their mean.
// SINR is tiered on the raw modem code, not the dB value.
func Quality(rsrp, rssi, rsrq, sinr float64) float64 {
	total := rsrpScore(rsrp) + rssiScore(rssi) + rsrqScore(rsrq) + sinrScore(sinr)
	return float64(total) / 4
}

func rsrpScore(v float64) int {
	switch {
	case v >= -84:
		return 40
	case v >= -102:
		return 30
	case v >= -111:
		return 20
	default:
		return 10
	}
}

func rssiScore(v float64) int {
	switch {
	case v >= -65:
		return 40
	case v >= -75:
		return 30
	case v >= -85:
		return 20
	default:
		return 10
	}
}

func rsrqScore(v float64) int {
	switch {
	case v >= -5:
		return 40
	case v >= -6:
		return 30
	default:
		return 10
	}
}

func sinrScore(v float64) int {
	switch {
	case v >= 12.5:
		return 40
	case v >= 10:
		return 30
	case v >= 7:
		return 20
	default:
		return 10
	}
}
