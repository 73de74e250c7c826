package audio

// PCM16Bytes encodes float amplitude samples in [-1, 1] as little-endian
// int16 PCM, clamping out-of-range values. This is the wire format the
// streaming session sends as audio/raw media chunks.
func PCM16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// SamplesFromPCM16 decodes little-endian int16 PCM into float amplitude
// samples in [-1, 1]. A trailing odd byte is ignored.
func SamplesFromPCM16(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32768
	}
	return out
}
