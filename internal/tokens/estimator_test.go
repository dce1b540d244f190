package tokens

import "testing"

func TestEstimate(t *testing.T) {
	e := NewEstimator()

	if got := e.Estimate(""); got != 0 {
		t.Errorf("Estimate(\"\") = %d", got)
	}

	short := e.Estimate("hello world")
	if short == 0 {
		t.Error("Estimate of non-empty text returned 0")
	}

	long := e.Estimate("hello world, this is a considerably longer sentence about token counting")
	if long <= short {
		t.Errorf("longer text should count more tokens: %d <= %d", long, short)
	}
}
