package eco

import "time"

// Record aggregates the emissions of one fleet over one day.
type Record struct {
	Fleet      string
	Date       time.Time
	DistanceKm float64
	CO2Kg      float64
	Deliveries int
}

// CO2PerDelivery returns the kilograms of CO2 emitted per delivered booking.
func (r Record) CO2PerDelivery() float64 {
	if r.Deliveries == 0 {
		return 0
	}
	return r.CO2Kg / float64(r.Deliveries)
}

// CO2PerKm returns the kilograms of CO2 emitted per driven kilometer.
func (r Record) CO2PerKm() float64 {
	if r.DistanceKm == 0 {
		return 0
	}
	return r.CO2Kg / r.DistanceKm
}
