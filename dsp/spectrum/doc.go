// Package spectrum estimates band-limited signal power from fixed-length
// epochs.
//
// [BandEstimator] windows an epoch, transforms it with algo-fft and integrates
// the one-sided power spectral density over a set of frequency bands.
package spectrum
