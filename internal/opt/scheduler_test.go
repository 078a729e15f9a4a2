package opt

import (
	"math"
	"reflect"
	"testing"
)

// TestMultiStepDecayTable tests decay at the listed epochs only.
func TestMultiStepDecayTable(t *testing.T) {
	sgd := NewSGD(0.1, 0, 0, false)
	s := NewMultiStepDecay(sgd, 0.1, 0, []int{2, 4})

	var changedAt []int
	for epoch := 0; epoch < 8; epoch++ {
		if _, changed := s.Step(epoch); changed {
			changedAt = append(changedAt, epoch)
		}
	}
	if !reflect.DeepEqual(changedAt, []int{2, 4}) {
		t.Errorf("decayed at %v, want [2 4]", changedAt)
	}
	if math.Abs(sgd.LearningRate()-0.001) > 1e-15 {
		t.Errorf("lr = %v, want 0.001", sgd.LearningRate())
	}
}

// TestMultiStepDecayBeyondTraining tests that boundaries past the last epoch never fire.
func TestMultiStepDecayBeyondTraining(t *testing.T) {
	sgd := NewSGD(0.1, 0, 0, false)
	s := NewMultiStepDecay(sgd, 0.1, 0, []int{40, 60})
	for epoch := 0; epoch < 3; epoch++ {
		lr, changed := s.Step(epoch)
		if changed || lr != 0.1 {
			t.Errorf("epoch %d: lr=%v changed=%v", epoch, lr, changed)
		}
	}
}

// TestMultiStepDecayPeriod tests that a period overrides the table.
func TestMultiStepDecayPeriod(t *testing.T) {
	sgd := NewSGD(1, 0, 0, false)
	s := NewMultiStepDecay(sgd, 0.5, 3, []int{1})

	var changedAt []int
	for epoch := 0; epoch < 10; epoch++ {
		if _, changed := s.Step(epoch); changed {
			changedAt = append(changedAt, epoch)
		}
	}
	if !reflect.DeepEqual(changedAt, []int{3, 6, 9}) {
		t.Errorf("decayed at %v, want [3 6 9]", changedAt)
	}
	if sgd.LearningRate() != 0.125 {
		t.Errorf("lr = %v, want 0.125", sgd.LearningRate())
	}
}

// TestParseEpochList tests parsing of the decay epoch flag.
func TestParseEpochList(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"40,60", []int{40, 60}, false},
		{" 60 , 40 ", []int{40, 60}, false},
		{"", nil, false},
		{"10", []int{10}, false},
		{"10,x", nil, true},
		{"0,5", nil, true},
		{"5,5", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseEpochList(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEpochList(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseEpochList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
