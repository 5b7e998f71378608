package modes

import "sync"

// checksumTable holds the contribution of each payload bit to the 24-bit
// parity remainder of a long frame. Short frames index the table with a
// 56-bit offset. The final 24 entries cover the parity field itself and
// are zero.
var checksumTable = [LongFrameBits]uint32{
	0x3935ea, 0x1c9af5, 0xf1b77e, 0x78dbbf, 0xc397db, 0x9e31e9, 0xb0e2f0, 0x587178,
	0x2c38bc, 0x161c5e, 0x0b0e2f, 0xfa7d13, 0x82c48d, 0xbe9842, 0x5f4c21, 0xd05c14,
	0x682e0a, 0x341705, 0xe5f186, 0x72f8c3, 0xc68665, 0x9cb936, 0x4e5c9b, 0xd8d449,
	0x939020, 0x49c810, 0x24e408, 0x127204, 0x093902, 0x049c81, 0xfdb444, 0x7eda22,
	0x3f6d11, 0xe04c8c, 0x702646, 0x381323, 0xe3f395, 0x8e03ce, 0x4701e7, 0xdc7af7,
	0x91c77f, 0xb719bb, 0xa476d9, 0xadc168, 0x56e0b4, 0x2b705a, 0x15b82d, 0xf52612,
	0x7a9309, 0xc2b380, 0x6159c0, 0x30ace0, 0x185670, 0x0c2b38, 0x06159c, 0x030ace,
	0x018567, 0xff38b7, 0x80665f, 0xbfc92b, 0xa01e91, 0xaff54c, 0x57faa6, 0x2bfd53,
	0xea04ad, 0x8af852, 0x457c29, 0xdd4410, 0x6ea208, 0x375104, 0x1ba882, 0x0dd441,
	0xf91024, 0x7c8812, 0x3e4409, 0xe0d800, 0x706c00, 0x383600, 0x1c1b00, 0x0e0d80,
	0x0706c0, 0x038360, 0x01c1b0, 0x00e0d8, 0x00706c, 0x003836, 0x001c1b, 0xfff409,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
}

// Checksum computes the 24-bit remainder over the payload's data bits,
// excluding the trailing parity field. The payload must be 7 or 14 bytes.
func Checksum(payload []byte) uint32 {
	bits := len(payload) * 8
	offset := 0
	if bits != LongFrameBits {
		offset = LongFrameBits - ShortFrameBits
	}

	var crc uint32
	for j := 0; j < bits-24; j++ {
		mask := byte(1 << (7 - j%8))
		if payload[j/8]&mask != 0 {
			crc ^= checksumTable[offset+j]
		}
	}
	return crc & 0xffffff
}

// Syndrome returns the computed remainder XORed with the transmitted
// parity field. A zero syndrome means the frame is intact.
func Syndrome(payload []byte) uint32 {
	n := len(payload)
	rem := uint32(payload[n-3])<<16 | uint32(payload[n-2])<<8 | uint32(payload[n-1])
	return (Checksum(payload) ^ rem) & 0xffffff
}

// Validate reports whether the payload passes the parity check. It never
// mutates the payload and never attempts error correction.
func Validate(payload []byte) bool {
	if len(payload) != ShortFrameBytes && len(payload) != LongFrameBytes {
		return false
	}
	return Syndrome(payload) == 0
}

var (
	errTableOnce sync.Once
	// errTable maps a syndrome to the flipped bit position(s) that produce
	// it: low byte holds the first position, high byte the second (or zero
	// for single-bit entries). Positions are long-frame bit indexes.
	errTable map[uint32]uint16
)

// initErrTable enumerates single and double bit flips over a zeroed long
// frame. Bits 0..4 are excluded: flipping them would change the downlink
// format and with it the expected frame length.
func initErrTable() {
	errTable = make(map[uint32]uint16)
	payload := make([]byte, LongFrameBytes)

	for i := 5; i < LongFrameBits; i++ {
		mask0 := byte(1 << (7 - i%8))
		payload[i/8] ^= mask0
		errTable[Syndrome(payload)] = uint16(i)

		for j := i + 1; j < LongFrameBits; j++ {
			mask1 := byte(1 << (7 - j%8))
			payload[j/8] ^= mask1
			errTable[Syndrome(payload)] = uint16(i) | uint16(j)<<8
			payload[j/8] ^= mask1
		}

		payload[i/8] ^= mask0
	}
}

// Repair attempts to correct up to maxBits (1 or 2) flipped bits in place
// using the syndrome table. It returns the number of corrected bits, or 0
// if the syndrome matches no known error pattern. Callers decide which
// downlink formats are safe to repair; Repair itself only checks lengths.
func Repair(payload []byte, maxBits int) int {
	if len(payload) != ShortFrameBytes && len(payload) != LongFrameBytes {
		return 0
	}
	syndrome := Syndrome(payload)
	if syndrome == 0 {
		return 0
	}

	errTableOnce.Do(initErrTable)
	pos, ok := errTable[syndrome]
	if !ok {
		return 0
	}

	// Short frames reuse the long-frame bit positions shifted by 56.
	offset := LongFrameBits - len(payload)*8
	first := int(pos & 0xff)
	second := int(pos >> 8)

	if second != 0 {
		if maxBits < 2 || first < offset || second < offset {
			return 0
		}
		flipBit(payload, first-offset)
		flipBit(payload, second-offset)
		return 2
	}

	if maxBits < 1 || first < offset {
		return 0
	}
	flipBit(payload, first-offset)
	return 1
}

func flipBit(payload []byte, bit int) {
	payload[bit/8] ^= 1 << (7 - bit%8)
}
