package preview

import "math"

const (
	ZoomStep       = 0.2
	MinZoom        = 0.4
	zoomInFromFit  = 1.2
	zoomOutFromFit = 0.8
)

// Zoom is either fit-to-container or an explicit scale factor.
type Zoom struct {
	Fit   bool    `json:"fit"`
	Scale float64 `json:"scale,omitempty"`
}

// FitZoom is the default zoom.
func FitZoom() Zoom {
	return Zoom{Fit: true}
}

// In steps the zoom up.
func (z Zoom) In() Zoom {
	if z.Fit {
		return Zoom{Scale: zoomInFromFit}
	}
	return Zoom{Scale: roundScale(z.Scale + ZoomStep)}
}

// Out steps the zoom down, never below MinZoom.
func (z Zoom) Out() Zoom {
	if z.Fit {
		return Zoom{Scale: zoomOutFromFit}
	}
	return Zoom{Scale: math.Max(MinZoom, roundScale(z.Scale-ZoomStep))}
}

func roundScale(s float64) float64 {
	return math.Round(s*100) / 100
}
