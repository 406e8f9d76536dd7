// Package metric turns smoothed band powers into a control ratio and gates
// it with a debounced threshold.
//
// A [Protocol] selects the numerator and denominator bands of the ratio.
// An [Evaluator] counts consecutive updates above a threshold and fires once
// the count reaches the required number, then starts counting again from
// zero. Single crossings never fire.
package metric
