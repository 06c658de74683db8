package vehicle

import (
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/monitoring"
)

// planned is the plan following part of taxis and trucks: bookings are
// queued, a plan is requested after a quiet period and its instructions are
// executed one at a time.
type planned struct {
	v           *core
	plan        []Instruction
	instruction *Instruction
	replanSeq   uint64
	home        geo.Position
	// onboard lists the bookings whose pickup is done.
	onboard func() []*booking.Booking
	// next executes the next instruction of the plan.
	next func()
}

// scheduleReplan requests a new plan once no booking arrived for
// ReplanDelay. Earlier pending requests are superseded.
func (p *planned) scheduleReplan() {
	p.replanSeq++
	seq := p.replanSeq
	v := p.v
	go func() {
		select {
		case <-v.ctx.Done():
			return
		case <-time.After(v.deps.ReplanDelay):
		}
		v.post(func() { p.replan(seq) })
	}()
}

func (p *planned) request() PlanRequest {
	v := p.v
	req := PlanRequest{
		VehicleID:         v.id,
		Kind:              v.kind,
		Position:          v.position,
		PassengerCapacity: v.passengerCap,
		ParcelCapacity:    v.parcelCap,
		Passengers:        len(v.passengers),
		Cargo:             len(v.cargo),
		Waiting:           append([]*booking.Booking{}, v.queue...),
		Onboard:           p.onboard(),
	}
	if v.heading != nil {
		h := *v.heading
		req.Heading = &h
	}
	return req
}

func (p *planned) replan(seq uint64) {
	v := p.v
	if seq != p.replanSeq {
		return
	}
	if v.deps.Planner == nil {
		v.log.Errorf("vehicle %s has no planner", v.id)
		return
	}
	req := p.request()
	if len(req.Waiting) == 0 && len(req.Onboard) == 0 {
		return
	}
	go func() {
		defer monitoring.Recover()
		instructions, err := v.deps.Planner.Plan(v.ctx, req)
		if err != nil {
			if v.ctx.Err() != nil {
				return
			}
			v.log.Errorf("vehicle %s plan failed, retrying in %s: %v", v.id, v.deps.RetryDelay, err)
			select {
			case <-v.ctx.Done():
				return
			case <-time.After(v.deps.RetryDelay):
			}
			// a newer request supersedes this retry through seq
			v.post(func() { p.replan(seq) })
			return
		}
		v.post(func() { p.apply(seq, instructions) })
	}()
}

// apply replaces the plan. Results of superseded requests are dropped; the
// newer request will deliver its own.
func (p *planned) apply(seq uint64, instructions []Instruction) {
	if seq != p.replanSeq {
		return
	}
	p.plan = instructions
	p.v.log.Debugf("vehicle %s got a plan of %d instructions", p.v.id, len(instructions))
	p.v.emit(EventStatus, nil)
	if p.instruction == nil {
		p.next()
	}
}

// shift pops the next instruction worth executing. Pickups of bookings
// already on board and deliveries of bookings not on board are skipped.
func (p *planned) shift() *Instruction {
	for len(p.plan) > 0 {
		in := p.plan[0]
		p.plan = p.plan[1:]
		if p.stale(in) {
			continue
		}
		return &in
	}
	return nil
}

func (p *planned) stale(in Instruction) bool {
	switch in.Action {
	case ActionEnd:
		return true
	case ActionPickup:
		return in.Booking == nil || !contains(p.v.queue, in.Booking)
	case ActionDelivery:
		return in.Booking == nil || !contains(p.onboard(), in.Booking)
	}
	return false
}

func (p *planned) fillPlan(s *Snapshot) {
	stops := make([]PlannedStop, 0, len(p.plan)+1)
	add := func(in Instruction) {
		st := PlannedStop{Action: in.Action}
		if in.Booking != nil {
			st.BookingID = in.Booking.ID
		}
		if !in.Arrival.IsZero() {
			st.Arrival = in.Arrival.Format(booking.ClockLayout)
		}
		stops = append(stops, st)
	}
	if p.instruction != nil {
		add(*p.instruction)
	}
	for _, in := range p.plan {
		add(in)
	}
	if len(stops) > 0 {
		s.Plan = stops
	}
}

func contains(list []*booking.Booking, b *booking.Booking) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}
