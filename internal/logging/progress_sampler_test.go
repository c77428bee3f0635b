package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize int
		wantSize   int
	}{
		{"default bucket size for zero", 0, 25},
		{"default bucket size for negative", -1, 25},
		{"custom bucket size", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog("job", 50) {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Forget("job") // should not panic
}

func TestProgressSampler_Buckets(t *testing.T) {
	s := NewProgressSampler(25)

	steps := []struct {
		percent int
		want    bool
	}{
		{0, true},
		{10, false},
		{24, false},
		{25, true},
		{30, false},
		{75, true},
		{60, false},
		{100, true},
		{120, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog("wf:extract", step.percent); got != step.want {
			t.Fatalf("ShouldLog(%d) = %v, want %v", step.percent, got, step.want)
		}
	}
}

func TestProgressSampler_JobsAreIndependent(t *testing.T) {
	s := NewProgressSampler(50)
	if !s.ShouldLog("a", 10) {
		t.Fatal("first event for a should log")
	}
	if !s.ShouldLog("b", 10) {
		t.Fatal("first event for b should log")
	}
	s.Forget("a")
	if !s.ShouldLog("a", 10) {
		t.Fatal("forgotten job should log again")
	}
	if s.ShouldLog("b", 20) {
		t.Fatal("same bucket for b should not log")
	}
}
