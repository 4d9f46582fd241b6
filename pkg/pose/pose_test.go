package pose

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

const tolerance = 1e-9

func vecEquals(a, b r3.Vector) bool {
	return a.Sub(b).Norm() < tolerance
}

func TestStatic_Position(t *testing.T) {
	s := Static{"target": {X: 1, Y: 2, Z: 3}}

	got, err := s.Position("target")
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if !vecEquals(got, r3.Vector{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Position = %v", got)
	}

	if _, err := s.Position("ghost"); !errors.Is(err, ErrPoseUnavailable) {
		t.Errorf("expected ErrPoseUnavailable, got %v", err)
	}
}

func TestStore_Staleness(t *testing.T) {
	clk := clock.NewMock()
	s := NewStore(clk, 500*time.Millisecond)

	s.Set("target", At(0, 10, 0))
	s.Pin("arm.0", At(1, 1, 1))

	if _, err := s.Position("target"); err != nil {
		t.Fatalf("fresh pose: %v", err)
	}

	clk.Add(400 * time.Millisecond)
	if _, err := s.Position("target"); err != nil {
		t.Fatalf("pose within max age: %v", err)
	}

	clk.Add(200 * time.Millisecond)
	if _, err := s.Position("target"); !errors.Is(err, ErrPoseUnavailable) {
		t.Errorf("stale pose: expected ErrPoseUnavailable, got %v", err)
	}

	clk.Add(time.Hour)
	if _, err := s.Position("arm.0"); err != nil {
		t.Errorf("pinned pose must not expire: %v", err)
	}

	s.Set("target", At(0, 5, 0))
	got, err := s.Position("target")
	if err != nil {
		t.Fatalf("refreshed pose: %v", err)
	}
	if !vecEquals(got, r3.Vector{Y: 5}) {
		t.Errorf("Position = %v, want (0,5,0)", got)
	}
}

func TestStore_SetKeepsPin(t *testing.T) {
	clk := clock.NewMock()
	s := NewStore(clk, time.Second)

	s.Pin("arm.0", At(0, 0, 0))
	s.Set("arm.0", At(1, 0, 0))
	clk.Add(time.Minute)

	got, err := s.Position("arm.0")
	if err != nil {
		t.Fatalf("pinned entity updated by Set must stay pinned: %v", err)
	}
	if !vecEquals(got, r3.Vector{X: 1}) {
		t.Errorf("Position = %v", got)
	}
}

func TestStore_RemoveAndUnknown(t *testing.T) {
	s := NewStore(clock.NewMock(), 0)
	s.Set("target", At(1, 0, 0))
	s.Remove("target")

	if _, err := s.Position("target"); !errors.Is(err, ErrPoseUnavailable) {
		t.Errorf("expected ErrPoseUnavailable after Remove, got %v", err)
	}
	if len(s.Entities()) != 0 {
		t.Errorf("Entities() = %v, want empty", s.Entities())
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(nil, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(v float64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Set("target", At(v, 0, 0))
			}
		}(float64(i))
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = s.Position("target")
			}
		}()
	}
	wg.Wait()
}

func TestOrbit_Position(t *testing.T) {
	clk := clock.NewMock()
	arms := Static{"arm.0": {X: -1}}
	o := NewOrbit(clk, "target", r3.Vector{Z: 2}, 10, 4*time.Second, arms)

	tests := []struct {
		elapsed time.Duration
		want    r3.Vector
	}{
		{0, r3.Vector{X: 10, Z: 2}},
		{time.Second, r3.Vector{Y: 10, Z: 2}},
		{time.Second, r3.Vector{X: -10, Z: 2}},
		{2 * time.Second, r3.Vector{X: 10, Z: 2}}, // full period wraps
	}
	for _, tt := range tests {
		clk.Add(tt.elapsed)
		got, err := o.Position("target")
		if err != nil {
			t.Fatalf("Position: %v", err)
		}
		if got.Sub(tt.want).Norm() > 1e-6 {
			t.Errorf("after +%v: Position = %v, want %v", tt.elapsed, got, tt.want)
		}
	}

	got, err := o.Position("arm.0")
	if err != nil || !vecEquals(got, r3.Vector{X: -1}) {
		t.Errorf("fallback Position = %v, %v", got, err)
	}

	if _, err := NewOrbit(clk, "target", r3.Vector{}, 1, time.Second, nil).Position("arm.0"); !errors.Is(err, ErrPoseUnavailable) {
		t.Errorf("expected ErrPoseUnavailable without fallback, got %v", err)
	}
}

func TestFromHPR(t *testing.T) {
	tests := []struct {
		name    string
		h, p, r float64
		in      r3.Vector
		want    r3.Vector
	}{
		{"identity", 0, 0, 0, r3.Vector{X: 1}, r3.Vector{X: 1}},
		{"heading 90", 90, 0, 0, r3.Vector{X: 1}, r3.Vector{Y: 1}},
		{"pitch 90", 0, 90, 0, r3.Vector{Y: 1}, r3.Vector{Z: 1}},
		{"roll 90", 0, 0, 90, r3.Vector{Z: 1}, r3.Vector{X: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := FromHPR(tt.h, tt.p, tt.r)
			got := Rotate(q, tt.in)
			if got.Sub(tt.want).Norm() > 1e-9 {
				t.Errorf("Rotate = %v, want %v", got, tt.want)
			}
			norm := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
			if math.Abs(norm-1) > 1e-12 {
				t.Errorf("|q| = %v, want 1", norm)
			}
		})
	}
}

func TestToHPR(t *testing.T) {
	tests := []struct {
		name string
		hpr  [3]float64
	}{
		{"identity", [3]float64{0, 0, 0}},
		{"heading only", [3]float64{90, 0, 0}},
		{"mixed", [3]float64{30, 20, -10}},
		{"wide", [3]float64{-120, 45, 170}},
		{"pitched straight up", [3]float64{40, 90, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToHPR(FromHPR(tt.hpr[0], tt.hpr[1], tt.hpr[2]))
			for i := range got {
				if math.Abs(got[i]-tt.hpr[i]) > 1e-6 {
					t.Errorf("ToHPR = %v, want %v", got, tt.hpr)
					break
				}
			}
		})
	}

	if got := (Pose{}).HPR(); got != ([3]float64{}) {
		t.Errorf("zero orientation HPR = %v, want zeros", got)
	}
	scaled := quat.Scale(3, FromHPR(15, 0, 0))
	if got := ToHPR(scaled); math.Abs(got[0]-15) > 1e-6 {
		t.Errorf("unnormalized heading = %v, want 15", got[0])
	}
}
