package vehicle

import (
	"math"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
)

const (
	droneMaxSpeed      = 80.0
	droneCO2PerKmKg    = 0.001
	droneWeight        = 5.0
	droneMaxWeight     = 10.0
	droneRange         = 100000.0
	droneMaxAltitude   = 800.0
	droneDropoffTime   = 600.0
	droneParcelDefault = 1
)

// Drone flies straight lines and carries light parcels within its range.
type Drone struct {
	*core
	maxSpeed    float64
	altitude    float64
	takeoffFrom geo.Position
}

// NewDrone creates and starts a drone.
func NewDrone(spec Spec, deps Deps) *Drone {
	if spec.CO2PerKmKg == 0 {
		spec.CO2PerKmKg = droneCO2PerKmKg
	}
	if spec.Weight == 0 {
		spec.Weight = droneWeight
	}
	if spec.ParcelCapacity == 0 {
		spec.ParcelCapacity = droneParcelDefault
	}
	if spec.MaxSpeed == 0 {
		spec.MaxSpeed = droneMaxSpeed
	}
	d := &Drone{core: newCore(KindDrone, "d", spec, deps), maxSpeed: spec.MaxSpeed}
	d.self = d
	d.start()
	return d
}

// navigate flies straight to pos and hovers there for the drop-off.
func (d *Drone) navigate(pos geo.Position) {
	d.heading = &pos
	d.routeSeq++
	seq := d.routeSeq
	d.takeoffFrom = d.position
	route := geo.StraightRoute(d.position, pos, d.maxSpeed, droneDropoffTime)
	d.post(func() { d.startRoute(seq, route, 0) })
}

func (d *Drone) canHandle(b *booking.Booking) bool {
	if d.cargoWeight()+b.Weight > droneMaxWeight {
		return false
	}
	load := len(d.queue) + len(d.cargo)
	if d.booking != nil && !contains(d.cargo, d.booking) {
		load++
	}
	if d.parcelCap <= load {
		return false
	}
	pickup := b.Pickup().Position
	trip := geo.Haversine(d.origin, pickup)
	if dest, ok := b.Destination(); ok {
		trip += geo.Haversine(pickup, dest.Position) + geo.Haversine(dest.Position, d.origin)
	} else {
		trip += geo.Haversine(pickup, d.origin)
	}
	return trip <= droneRange
}

func (d *Drone) co2For(km float64) float64 {
	return (d.weight + d.cargoWeight()) * km * d.co2PerKmKg
}

// afterMove climbs after take-off and descends towards the target.
func (d *Drone) afterMove() {
	d.altitude = math.Min(droneMaxAltitude, math.Min(d.ema, geo.Haversine(d.position, d.takeoffFrom)))
}

func (d *Drone) fillSnapshot(s *Snapshot) {
	s.Altitude = d.altitude
}
