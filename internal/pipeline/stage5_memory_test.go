package pipeline

import "testing"

func TestClampChannelBudgetRatioBoundaries(t *testing.T) {
	cases := map[float64]float64{
		-1:  0,
		0:   0,
		0.5: 0.5,
		1:   1,
		2:   1,
	}
	for in, want := range cases {
		if got := ClampChannelBudgetRatio(in); got != want {
			t.Errorf("ClampChannelBudgetRatio(%v) = %v, want %v", in, got, want)
		}
	}
}
