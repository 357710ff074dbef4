package icmp

// Checksum computes the Internet checksum (RFC 1071) of b.
//
// Words are accumulated little-endian and the complemented result is
// byte-swapped, so the returned value is the big-endian wire checksum on
// every host. A trailing odd byte is added unpaired.
func Checksum(b []byte) uint16 {
	var sum uint32

	n := len(b) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(b[i+1])<<8 | uint32(b[i])
	}
	if len(b)&1 == 1 {
		sum += uint32(b[len(b)-1])
	}

	// Fold twice: the first fold can itself carry
	sum = (sum >> 16) + (sum & 0xffff)
	sum += sum >> 16

	v := ^sum & 0xffff
	return uint16(v>>8 | (v<<8)&0xff00)
}
