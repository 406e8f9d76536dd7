package openbci

import (
	"errors"
	"fmt"
)

// Cyton stream framing.
const (
	PacketSize   = 33
	Header       = 0xA0
	FooterMin    = 0xC0
	FooterMax    = 0xCF
	NumChannels  = 8
	SampleRate   = 250.0
	DefaultGain  = 24.0
	referenceVol = 4.5
)

// ErrBadPacket reports a frame without a valid header or footer.
var ErrBadPacket = errors.New("openbci: malformed packet")

// Packet is one decoded Cyton sample.
type Packet struct {
	SampleNumber byte
	// Channels holds the eight EEG channels in microvolts.
	Channels [NumChannels]float64
	// Aux holds the raw auxiliary words (accelerometer by default).
	Aux    [3]int16
	Footer byte
}

// ScaleMicrovolts returns the microvolts per ADC count at gain.
func ScaleMicrovolts(gain float64) float64 {
	return referenceVol / gain / float64(1<<23-1) * 1e6
}

// DecodePacket decodes one 33-byte frame. Channel counts are converted with
// scale microvolts per count.
func DecodePacket(frame []byte, scale float64) (Packet, error) {
	var p Packet

	if len(frame) != PacketSize {
		return p, fmt.Errorf("%w: %d bytes", ErrBadPacket, len(frame))
	}

	if frame[0] != Header {
		return p, fmt.Errorf("%w: header %#x", ErrBadPacket, frame[0])
	}

	footer := frame[PacketSize-1]
	if footer < FooterMin || footer > FooterMax {
		return p, fmt.Errorf("%w: footer %#x", ErrBadPacket, footer)
	}

	p.SampleNumber = frame[1]
	p.Footer = footer

	for ch := range NumChannels {
		off := 2 + 3*ch
		p.Channels[ch] = float64(int24(frame[off], frame[off+1], frame[off+2])) * scale
	}

	for i := range p.Aux {
		off := 26 + 2*i
		p.Aux[i] = int16(uint16(frame[off])<<8 | uint16(frame[off+1]))
	}

	return p, nil
}

func int24(b0, b1, b2 byte) int32 {
	v := int32(b0)<<16 | int32(b1)<<8 | int32(b2)
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}
