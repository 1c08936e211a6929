package pipeline

import (
	"flightcore/internal/bulletin"
	"flightcore/internal/measure"
	"flightcore/internal/schedule"
)

// GNSSSplitter fans decoded fixes out into the position, velocity, heading
// and course channels. Fixes without a solution are dropped.
type GNSSSplitter struct {
	rate schedule.Rate
	fix  *bulletin.Reader[measure.GNSSFix]

	position *bulletin.Writer[measure.Position]
	velocity *bulletin.Writer[measure.Axes]
	heading  *bulletin.Writer[measure.Angle]
	course   *bulletin.Writer[measure.Angle]
}

func NewGNSSSplitter(rate schedule.Rate, h *Hub, w *Writers) *GNSSSplitter {
	return &GNSSSplitter{
		rate:     rate,
		fix:      h.GNSS.Reader(),
		position: w.GNSSPosition,
		velocity: w.GNSSVelocity,
		heading:  w.Heading,
		course:   w.Course,
	}
}

func (g *GNSSSplitter) Rate() schedule.Rate { return g.rate }

func (g *GNSSSplitter) Schedule() schedule.Outcome {
	f, ok := g.fix.Get()
	if !ok || !f.Fixed {
		return schedule.Ran
	}
	g.position.Write(f.Position)
	g.velocity.Write(f.Velocity)
	if f.HeadingValid {
		g.heading.Write(f.Heading)
	}
	if f.CourseValid {
		g.course.Write(f.Course)
	}
	return schedule.Ran
}
