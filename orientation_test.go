package camerasession

import (
	"math"
	"testing"
)

func TestFrameOrientation(t *testing.T) {
	tests := []struct {
		name        string
		orientation int
		front       bool
		display     int
		want        int
	}{
		{"back no display rotation", 90, false, 0, 90},
		{"front no display rotation", 90, true, 0, 90},
		{"front display 90", 0, true, 90, 270},
		{"back display 90", 90, false, 90, 180},
		{"back wraps", 270, false, 180, 90},
		{"front wraps", 270, true, 270, 0},
		{"negative display normalized", 0, false, -90, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FrameOrientation(tt.orientation, tt.front, tt.display)
			if got != tt.want {
				t.Errorf("FrameOrientation(%d, %v, %d) = %d, want %d",
					tt.orientation, tt.front, tt.display, got, tt.want)
			}
		})
	}
}

func TestFrameOrientation_Range(t *testing.T) {
	for _, orientation := range []int{0, 90, 180, 270} {
		for _, display := range []int{0, 90, 180, 270} {
			for _, front := range []bool{false, true} {
				got := FrameOrientation(orientation, front, display)
				if got < 0 || got >= 360 {
					t.Fatalf("FrameOrientation(%d, %v, %d) = %d out of [0,360)", orientation, front, display, got)
				}
			}
		}
	}
}

func TestMultiply_Identity(t *testing.T) {
	m := HorizontalFlipMatrix()
	if got := Multiply(IdentityMatrix(), m); got != m {
		t.Errorf("I x M = %v, want %v", got, m)
	}
	if got := Multiply(m, IdentityMatrix()); got != m {
		t.Errorf("M x I = %v, want %v", got, m)
	}
	if got := Multiply(m, m); got != IdentityMatrix() {
		t.Errorf("flip applied twice should be identity, got %v", got)
	}
}

func TestRotateTextureMatrix(t *testing.T) {
	tests := []struct {
		name    string
		m       Matrix
		degrees int
		want    Matrix
	}{
		{
			name:    "zero rotation",
			m:       IdentityMatrix(),
			degrees: 0,
			want:    IdentityMatrix(),
		},
		{
			name:    "quarter turn around centre",
			m:       IdentityMatrix(),
			degrees: 90,
			want: Matrix{
				0, 1, 0, 0,
				-1, 0, 0, 0,
				0, 0, 1, 0,
				1, 0, 0, 1,
			},
		},
		{
			name:    "half turn",
			m:       IdentityMatrix(),
			degrees: -180,
			want: Matrix{
				-1, 0, 0, 0,
				0, -1, 0, 0,
				0, 0, 1, 0,
				1, 1, 0, 1,
			},
		},
		{
			name:    "flip then rotate by -270",
			m:       HorizontalFlipMatrix(),
			degrees: -270,
			want: Matrix{
				0, 1, 0, 0,
				1, 0, 0, 0,
				0, 0, 1, 0,
				0, 0, 0, 1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RotateTextureMatrix(tt.m, tt.degrees)
			if got != tt.want {
				t.Errorf("RotateTextureMatrix(%d) =\n%v\nwant\n%v", tt.degrees, got, tt.want)
			}
		})
	}
}

// The texture centre is a fixed point of every rotation.
func TestRotateTextureMatrix_CentreFixed(t *testing.T) {
	for _, deg := range []int{0, 30, 45, 90, 135, 180, 270, -90} {
		m := RotateTextureMatrix(IdentityMatrix(), deg)
		u := m[0]*0.5 + m[4]*0.5 + m[12]
		v := m[1]*0.5 + m[5]*0.5 + m[13]
		if math.Abs(float64(u-0.5)) > 1e-6 || math.Abs(float64(v-0.5)) > 1e-6 {
			t.Errorf("rotation %d moves centre to (%f, %f)", deg, u, v)
		}
	}
}
