package recognize

import "math"

// argmaxSoftmax returns the index of the largest value in a CTC frame and
// its probability. Frames that already look like probabilities are used
// directly; raw logits go through a numerically stable softmax.
func argmaxSoftmax(frame []float32) (int, float64) {
	if len(frame) == 0 {
		return -1, 0
	}
	idx := 0
	maxVal := frame[0]
	var sum float64
	minVal := frame[0]
	for i, v := range frame {
		if v > maxVal {
			maxVal = v
			idx = i
		}
		if v < minVal {
			minVal = v
		}
		sum += float64(v)
	}
	if sum > 0.99 && sum < 1.01 && minVal >= 0 && maxVal <= 1 {
		return idx, float64(frame[idx])
	}
	var denom float64
	for _, v := range frame {
		denom += math.Exp(float64(v - maxVal))
	}
	if denom == 0 {
		return idx, 0
	}
	return idx, 1.0 / denom // exp(max-max)/denom
}
