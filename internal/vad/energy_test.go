package vad

import (
	"math"
	"sync"
	"testing"
)

func TestNewEnergyDetector(t *testing.T) {
	tests := []struct {
		name       string
		threshold  float32
		windowSize int
		expectErr  bool
	}{
		{"valid parameters", 0.5, 512, false},
		{"threshold too low", -0.1, 512, true},
		{"threshold too high", 1.1, 512, true},
		{"zero window size", 0.5, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewEnergyDetector(tt.threshold, tt.windowSize)
			if tt.expectErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if d.threshold != tt.threshold || d.windowSize != tt.windowSize {
				t.Errorf("Expected threshold %f window %d, got %f %d",
					tt.threshold, tt.windowSize, d.threshold, d.windowSize)
			}
		})
	}
}

func TestProbability(t *testing.T) {
	silence := make([]float32, 512)
	if p := Probability(silence); p != 0 {
		t.Errorf("Expected 0 for silence, got %f", p)
	}

	loud := make([]float32, 512)
	for i := range loud {
		loud[i] = 0.9
	}
	if p := Probability(loud); p != 1 {
		t.Errorf("Expected 1 for loud frame, got %f", p)
	}

	if p := Probability(nil); p != 0 {
		t.Errorf("Expected 0 for empty frame, got %f", p)
	}
}

func TestEnergyDetectorLevels(t *testing.T) {
	d, err := NewEnergyDetector(0.5, 512)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	tests := []struct {
		name      string
		amplitude float64
		voiced    bool
	}{
		{"loud", 0.5, true},
		{"normal speech", 0.1, true},
		{"quiet speech", 0.03, true},
		{"room noise", 0.005, false},
		{"digital silence", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]float32, 16000)
			for i := range samples {
				samples[i] = float32(tt.amplitude * math.Sin(2*math.Pi*220*float64(i)/16000))
			}

			intervals, err := d.Detect(samples, 16000)
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if voiced := len(intervals) > 0; voiced != tt.voiced {
				t.Errorf("Expected voiced=%v at amplitude %.3f, got %v", tt.voiced, tt.amplitude, intervals)
			}
		})
	}
}

func TestEnergyDetectorIntervals(t *testing.T) {
	d, err := NewEnergyDetector(0.5, 100)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	// silence, voice, silence, voice until the end (partial last frame)
	samples := make([]float32, 750)
	for i := 200; i < 400; i++ {
		samples[i] = float32(0.5 * math.Sin(float64(i)))
	}
	for i := 600; i < 750; i++ {
		samples[i] = float32(0.5 * math.Sin(float64(i)))
	}

	intervals, err := d.Detect(samples, 16000)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	expected := []Interval{{Start: 200, End: 400}, {Start: 600, End: 750}}
	if len(intervals) != len(expected) {
		t.Fatalf("Expected %d intervals, got %v", len(expected), intervals)
	}

	for i := range expected {
		if intervals[i] != expected[i] {
			t.Errorf("Interval %d: expected %+v, got %+v", i, expected[i], intervals[i])
		}
	}
}

func TestEnergyDetectorInvalidRate(t *testing.T) {
	d, _ := NewEnergyDetector(0.5, 512)

	if _, err := d.Detect(make([]float32, 10), 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestEnergyDetectorConcurrent(t *testing.T) {
	d, _ := NewEnergyDetector(0.5, 512)

	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	first, err := d.Detect(samples, 16000)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := d.Detect(samples, 16000)
			if err != nil {
				t.Errorf("Detect failed: %v", err)
				return
			}
			if len(got) != len(first) || got[0] != first[0] {
				t.Errorf("Expected %v, got %v", first, got)
			}
		}()
	}
	wg.Wait()
}
