package ahrs

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mount maps sensor-frame vectors into the body frame.
//
// The basis is built the way a board is aligned at installation: first the
// sensor axis pointing toward the nose is chosen, then the gravity vector is
// captured with the airframe level and stationary.
type Mount struct {
	set bool
	// bodyX, bodyY, bodyZ are body unit vectors expressed in sensor coordinates.
	bodyX, bodyY, bodyZ r3.Vec
}

// IdentityMount leaves vectors unchanged.
func IdentityMount() Mount {
	return Mount{bodyX: r3.Vec{X: 1}, bodyY: r3.Vec{Y: 1}, bodyZ: r3.Vec{Z: 1}}
}

// DominantAxis returns ±1..±3 for the accelerometer axis with the largest
// magnitude. Ties prefer X, then Y.
func DominantAxis(v r3.Vec) int {
	a1, a2, a3 := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	if a1 >= a2 && a1 >= a3 {
		if v.X >= 0 {
			return 1
		}
		return -1
	}
	if a2 >= a1 && a2 >= a3 {
		if v.Y >= 0 {
			return 2
		}
		return -2
	}
	if v.Z >= 0 {
		return 3
	}
	return -3
}

// NewMount builds a mount from the sensor axis facing forward (±1..±3) and
// the accelerometer reading captured in the level pose. The accelerometer
// reads gravity as -Z in body frame, so the body up axis is opposite to the
// captured vector.
func NewMount(forwardAxis int, gravity r3.Vec) (Mount, error) {
	up, err := unit(r3.Scale(-1, gravity))
	if err != nil {
		return Mount{}, fmt.Errorf("ahrs: invalid gravity vector: %v", err)
	}

	idx, sign := forwardAxis, 1.0
	if idx < 0 {
		idx, sign = -idx, -1.0
	}
	if idx < 1 || idx > 3 {
		return Mount{}, fmt.Errorf("ahrs: invalid forward axis %d", forwardAxis)
	}
	var fwd r3.Vec
	switch idx {
	case 1:
		fwd.X = sign
	case 2:
		fwd.Y = sign
	case 3:
		fwd.Z = sign
	}

	// Remove any component along gravity so forward is horizontal.
	fh, err := unit(r3.Sub(fwd, r3.Scale(r3.Dot(fwd, up), up)))
	if err != nil {
		return Mount{}, fmt.Errorf("ahrs: forward axis nearly vertical; try again")
	}
	// Body frame: X right, Y forward, Z up.
	right, err := unit(r3.Cross(fh, up))
	if err != nil {
		return Mount{}, fmt.Errorf("ahrs: invalid basis; try again")
	}
	return Mount{set: true, bodyX: right, bodyY: fh, bodyZ: up}, nil
}

// Set reports whether the mount was built from a captured orientation.
func (m Mount) Set() bool { return m.set }

// Apply maps a sensor-frame vector into body frame.
func (m Mount) Apply(v r3.Vec) r3.Vec {
	if !m.set {
		return v
	}
	return r3.Vec{X: r3.Dot(v, m.bodyX), Y: r3.Dot(v, m.bodyY), Z: r3.Dot(v, m.bodyZ)}
}

func unit(v r3.Vec) (r3.Vec, error) {
	n := r3.Norm(v)
	if n < 1e-9 {
		return r3.Vec{}, fmt.Errorf("zero vector")
	}
	return r3.Scale(1/n, v), nil
}
