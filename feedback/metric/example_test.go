package metric_test

import (
	"fmt"
	"time"

	"github.com/cwbudde/algo-neurofeedback/feedback/metric"
)

func ExampleEvaluator() {
	required := metric.RequiredCount(300*time.Millisecond, 100*time.Millisecond)
	ev, _ := metric.NewEvaluator(3, required)

	for _, m := range []float64{4, 4, 1, 4, 4, 4, 4} {
		fired := ev.Update(m)
		fmt.Printf("%.0f %-12s %v\n", m, ev.State(), fired)
	}
	// Output:
	// 4 accumulating false
	// 4 accumulating false
	// 1 idle         false
	// 4 accumulating false
	// 4 accumulating false
	// 4 triggered    true
	// 4 accumulating false
}
