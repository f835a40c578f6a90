package carbonpilot

// Emissions in kgCO2eq
type Emissions float64

func (e Emissions) GCO2eq() float64 {
	return float64(e) * 1000
}

func (e Emissions) TCO2eq() float64 {
	return float64(e) / 1000
}
