package spectrum_test

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-neurofeedback/dsp/spectrum"
)

func ExampleBandEstimator() {
	const fs = 256.0

	epoch := make([]float64, 256)
	for i := range epoch {
		epoch[i] = math.Sin(2 * math.Pi * 10 * float64(i) / fs)
	}

	est, err := spectrum.NewBandEstimator(fs, len(epoch))
	if err != nil {
		fmt.Println(err)
		return
	}

	p, err := est.Estimate(epoch)
	if err != nil {
		fmt.Println(err)
		return
	}

	best := 0
	for b := range p {
		if p[b] > p[best] {
			best = b
		}
	}

	r := est.BinRanges()[best]
	fmt.Printf("%s bins %d-%d\n", est.Bands()[best].Name, r.Lo, r.Hi)
	// Output:
	// alpha bins 9-12
}
