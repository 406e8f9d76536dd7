// Package design provides digital IIR filter coefficient designers for
// biosignal pre-filtering.
//
// The functions in this package produce biquad coefficients consumable by
// dsp/filter/biquad. It includes RBJ-style single sections ([Notch],
// [Highpass]) and a Butterworth [Bandstop] returning cascaded sections, the
// usual way to suppress 50/60 Hz mains interference in EEG recordings.
package design
