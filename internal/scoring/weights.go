package scoring

import "fmt"

// Weights holds one dense weight vector per score producer. It is built once
// at startup and only read afterwards, so it is shared between workers
// without locking.
type Weights map[string][]float32

// For returns the weights of producer, or nil.
func (w Weights) For(producer string) []float32 {
	if w == nil {
		return nil
	}
	return w[producer]
}

// Check verifies that producer has exactly want weights when it has any.
func (w Weights) Check(producer string, want int) error {
	got, ok := w[producer]
	if !ok {
		return nil
	}
	if len(got) != want {
		return fmt.Errorf("producer %s has %d weights, expected %d", producer, len(got), want)
	}
	return nil
}
