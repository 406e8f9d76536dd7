// Package buffer provides the fixed-length sample history used by streaming
// analysis. A [Sliding] buffer always holds exactly its capacity of samples:
// incoming chunks displace the oldest samples by the same count, so memory use
// is bounded no matter how large or irregular the delivered chunks are.
package buffer
