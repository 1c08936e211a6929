// Package pipeline wires the sensor bus, the attitude and navigation
// estimators and their outputs.
package pipeline

import (
	"errors"

	"go.uber.org/atomic"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"flightcore/internal/bulletin"
	"flightcore/internal/measure"
)

// ErrWritersClaimed is returned when the write handles were already handed out.
var ErrWritersClaimed = errors.New("pipeline: hub writers already claimed")

// Hub is the system data bus: one Bulletin per channel.
type Hub struct {
	// Sensor inputs.
	Accelerometer *bulletin.Bulletin[measure.Reading]
	Gyroscope     *bulletin.Bulletin[measure.Reading]
	Magnetometer  *bulletin.Bulletin[measure.Reading]
	Pressure      *bulletin.Bulletin[measure.Pressure]
	Battery       *bulletin.Bulletin[measure.Millivolts]
	GNSS          *bulletin.Bulletin[measure.GNSSFix]

	// Derived references.
	Altitude      *bulletin.Bulletin[measure.Altitude]
	VerticalSpeed *bulletin.Bulletin[measure.VerticalSpeed]
	GNSSPosition  *bulletin.Bulletin[measure.Position]
	GNSSVelocity  *bulletin.Bulletin[measure.Axes]
	Heading       *bulletin.Bulletin[measure.Angle]
	Course        *bulletin.Bulletin[measure.Angle]

	// Fused outputs.
	Quaternion   *bulletin.Bulletin[quat.Number]
	Attitude     *bulletin.Bulletin[measure.Euler]
	Velocity     *bulletin.Bulletin[r3.Vec]
	Position     *bulletin.Bulletin[measure.Position]
	Displacement *bulletin.Bulletin[measure.Displacement]

	writers *Writers
	claimed atomic.Bool
}

// Writers holds the unique write handle of every Hub channel.
type Writers struct {
	Sensors SensorWriters

	Altitude      *bulletin.Writer[measure.Altitude]
	VerticalSpeed *bulletin.Writer[measure.VerticalSpeed]
	GNSSPosition  *bulletin.Writer[measure.Position]
	GNSSVelocity  *bulletin.Writer[measure.Axes]
	Heading       *bulletin.Writer[measure.Angle]
	Course        *bulletin.Writer[measure.Angle]

	Outputs OutputWriters
}

// SensorWriters are the channels filled by sensor drivers.
type SensorWriters struct {
	Accelerometer *bulletin.Writer[measure.Reading]
	Gyroscope     *bulletin.Writer[measure.Reading]
	Magnetometer  *bulletin.Writer[measure.Reading]
	Pressure      *bulletin.Writer[measure.Pressure]
	Battery       *bulletin.Writer[measure.Millivolts]
	GNSS          *bulletin.Writer[measure.GNSSFix]
}

// OutputWriters are the channels filled by the Driver.
type OutputWriters struct {
	Quaternion   *bulletin.Writer[quat.Number]
	Attitude     *bulletin.Writer[measure.Euler]
	Velocity     *bulletin.Writer[r3.Vec]
	Position     *bulletin.Writer[measure.Position]
	Displacement *bulletin.Writer[measure.Displacement]
}

func NewHub() *Hub {
	h := &Hub{}
	w := &Writers{}
	h.Accelerometer, w.Sensors.Accelerometer = bulletin.New[measure.Reading]()
	h.Gyroscope, w.Sensors.Gyroscope = bulletin.New[measure.Reading]()
	h.Magnetometer, w.Sensors.Magnetometer = bulletin.New[measure.Reading]()
	h.Pressure, w.Sensors.Pressure = bulletin.New[measure.Pressure]()
	h.Battery, w.Sensors.Battery = bulletin.New[measure.Millivolts]()
	h.GNSS, w.Sensors.GNSS = bulletin.New[measure.GNSSFix]()

	h.Altitude, w.Altitude = bulletin.New[measure.Altitude]()
	h.VerticalSpeed, w.VerticalSpeed = bulletin.New[measure.VerticalSpeed]()
	h.GNSSPosition, w.GNSSPosition = bulletin.New[measure.Position]()
	h.GNSSVelocity, w.GNSSVelocity = bulletin.New[measure.Axes]()
	h.Heading, w.Heading = bulletin.New[measure.Angle]()
	h.Course, w.Course = bulletin.New[measure.Angle]()

	h.Quaternion, w.Outputs.Quaternion = bulletin.New[quat.Number]()
	h.Attitude, w.Outputs.Attitude = bulletin.New[measure.Euler]()
	h.Velocity, w.Outputs.Velocity = bulletin.New[r3.Vec]()
	h.Position, w.Outputs.Position = bulletin.New[measure.Position]()
	h.Displacement, w.Outputs.Displacement = bulletin.New[measure.Displacement]()

	h.writers = w
	return h
}

// Writers hands out the write handles. Only the first call succeeds, so
// every channel keeps exactly one producer.
func (h *Hub) Writers() (*Writers, error) {
	if !h.claimed.CompareAndSwap(false, true) {
		return nil, ErrWritersClaimed
	}
	w := h.writers
	h.writers = nil
	return w, nil
}
