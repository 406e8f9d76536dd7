// Package biquad provides the second-order IIR runtime used for streaming
// pre-filtering.
//
// A [Section] implements Direct Form II Transposed processing for a single
// second-order section defined by [Coefficients]. A [Cascade] chains sections
// in series but keeps no delay-line state of its own: state travels as an
// explicit [State] value into and out of every [Cascade.Apply] call, so a
// signal filtered chunk by chunk is identical to the same signal filtered in
// one piece.
//
// Coefficient design (notch, bandstop, highpass) lives in dsp/filter/design.
package biquad
