package camerasession

import "math"

// FrameOrientation returns the rotation, in degrees within [0,360), that a
// consumer must apply to frames of a device mounted at deviceOrientation
// while the display is rotated by displayRotation.
//
// Front-facing sensors are mirrored, so the display rotation runs in the
// opposite sense for them.
func FrameOrientation(deviceOrientation int, frontFacing bool, displayRotation int) int {
	rotation := normalizeDegrees(displayRotation)
	if frontFacing {
		rotation = 360 - rotation
	}
	return normalizeDegrees(deviceOrientation + rotation)
}

// Matrix is a 4x4 texture transform in column-major order.
type Matrix [16]float32

// IdentityMatrix returns the identity transform.
func IdentityMatrix() Matrix {
	return Matrix{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// HorizontalFlipMatrix mirrors texture coordinates around u = 0.5.
func HorizontalFlipMatrix() Matrix {
	return Matrix{
		-1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		1, 0, 0, 1,
	}
}

// Multiply returns a x b.
func Multiply(a, b Matrix) Matrix {
	var r Matrix
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[row+4*k] * b[k+4*col]
			}
			r[row+4*col] = sum
		}
	}
	return r
}

// RotateTextureMatrix returns m followed by a rotation of degrees around the
// texture centre (0.5, 0.5).
func RotateTextureMatrix(m Matrix, degrees int) Matrix {
	sin, cos := sinCos(degrees)

	var rot Matrix
	rot[0] = cos
	rot[1] = sin
	rot[4] = -sin
	rot[5] = cos
	rot[10] = 1
	rot[15] = 1

	// move the rotation origin from (0,0) to the texture centre
	rot[12] -= 0.5 * (rot[0] + rot[4])
	rot[13] -= 0.5 * (rot[1] + rot[5])
	rot[12] += 0.5
	rot[13] += 0.5

	return Multiply(m, rot)
}

// sinCos is exact for multiples of 90 degrees.
func sinCos(degrees int) (sin, cos float32) {
	switch normalizeDegrees(degrees) {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	rad := float64(degrees) * math.Pi / 180
	return float32(math.Sin(rad)), float32(math.Cos(rad))
}

func normalizeDegrees(degrees int) int {
	d := degrees % 360
	if d < 0 {
		d += 360
	}
	return d
}
