// Package audio provides PCM buffer conversions, WAV framing, and the
// ffmpeg-backed normalizer that turns arbitrary uploaded media into the
// canonical mono 16 kHz WAV the transcription backends expect.
package audio

import "fmt"

// sample16 reads the little-endian int16 sample at index i.
func sample16(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

// putSample16 writes s little-endian at index i.
func putSample16(pcm []byte, i int, s int16) {
	pcm[i*2] = byte(s)
	pcm[i*2+1] = byte(s >> 8)
}

// MonoToStereo duplicates every int16 mono sample into an L+R pair. Input is
// little-endian PCM16.
func MonoToStereo(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, samples*4)
	for i := range samples {
		s := sample16(pcm, i)
		putSample16(out, i*2, s)
		putSample16(out, i*2+1, s)
	}
	return out
}

// StereoToMono averages each L+R frame into one sample. The sum runs in
// int32 and clamps back into int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		avg := (int32(sample16(pcm, i*2)) + int32(sample16(pcm, i*2+1))) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		putSample16(out, i, int16(avg))
	}
	return out
}

// lerp16 linearly interpolates between two samples at fraction frac.
func lerp16(s0, s1 int16, frac float64) int16 {
	return int16(float64(s0)*(1-frac) + float64(s1)*frac)
}

// ResampleMono16 converts mono PCM16 from srcRate to dstRate by linear
// interpolation. Equal rates or degenerate input come back unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * step
		idx := int(pos)

		s0 := sample16(pcm, idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample16(pcm, idx+1)
		}
		putSample16(out, i, lerp16(s0, s1, pos-float64(idx)))
	}
	return out
}

// ResampleStereo16 converts interleaved stereo PCM16 from srcRate to dstRate
// by linear interpolation per channel.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	srcFrames := len(pcm) / 4
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*4)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)

		l0, r0 := sample16(pcm, idx*2), sample16(pcm, idx*2+1)
		l1, r1 := l0, r0
		if idx+1 < srcFrames {
			l1, r1 = sample16(pcm, (idx+1)*2), sample16(pcm, (idx+1)*2+1)
		}
		putSample16(out, i*2, lerp16(l0, l1, frac))
		putSample16(out, i*2+1, lerp16(r0, r1, frac))
	}
	return out
}

// FormatString renders a rate and channel count for log and error messages,
// e.g. "48000Hz stereo".
func FormatString(rate, channels int) string {
	ch := "mono"
	switch {
	case channels == 2:
		ch = "stereo"
	case channels > 2:
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
