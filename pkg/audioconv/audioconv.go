// Package audioconv decodes audio files into the mono 16 kHz float32 PCM
// the detection pipeline works in. WAV, MP3 and Ogg (Vorbis, with an Opus
// fallback) are supported; anything else is rejected after a magic-byte
// sniff.
package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// TargetRate is the sample rate every decoder output is resampled to.
const TargetRate = 16000

type Options struct {
	// MaxSamples truncates the decoded audio, 0 means unlimited.
	MaxSamples int
}

// DecodeFile reads path and returns mono float32 samples at TargetRate.
func DecodeFile(path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(f, opt)
	case ".mp3":
		return decodeMP3(f, opt)
	case ".ogg", ".oga":
		return decodeOgg(f, opt)
	}

	br := bufio.NewReader(f)
	magic, _ := br.Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	switch string(magic) {
	case "RIFF":
		return decodeWAV(f, opt)
	case "OggS":
		return decodeOgg(f, opt)
	}

	return nil, fmt.Errorf("unsupported audio format: %s", path)
}

func decodeWAV(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}

	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav file")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}

	out := make([]float32, len(pb.Data))
	scale := 1.0 / float64(int64(1)<<(depth-1))
	for i, v := range pb.Data {
		out[i] = clampf(float32(float64(v) * scale))
	}

	channels, rate := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			rate = pb.Format.SampleRate
		}
	}

	return finish(out, channels, rate, opt), nil
}

func decodeMP3(r io.Reader, opt Options) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}

	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}

	// go-mp3 always emits interleaved stereo
	return finish(Int16ToFloat32(ints), 2, rate, opt), nil
}

func decodeOgg(r io.ReadSeeker, opt Options) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err == nil {
		if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
			return nil, errors.New("invalid ogg/vorbis stream")
		}
		return finish(pcm, format.Channels, format.SampleRate, opt), nil
	}

	// Not Vorbis; retry the container as Opus.
	if _, serr := r.Seek(0, io.SeekStart); serr != nil {
		return nil, serr
	}
	out, oerr := decodeOggOpus(r, opt)
	if oerr != nil {
		return nil, fmt.Errorf("ogg is neither vorbis (%v) nor opus: %w", err, oerr)
	}
	return out, nil
}

func decodeOggOpus(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	// Opus always decodes at 48 kHz.
	const opusRate = 48000

	var pcm []float32
	buf := make([]int16, opusRate*channels/2)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, Int16ToFloat32(buf[:n*channels])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if len(pcm) == 0 {
		return nil, errors.New("empty opus stream")
	}

	return finish(pcm, channels, opusRate, opt), nil
}

// finish downmixes, resamples and truncates decoded PCM.
func finish(pcm []float32, channels, rate int, opt Options) []float32 {
	if channels > 1 {
		pcm = DownmixInterleaved(pcm, channels)
	}
	if rate != TargetRate {
		pcm = ResampleLinear(pcm, rate, TargetRate)
	}
	if opt.MaxSamples > 0 && len(pcm) > opt.MaxSamples {
		pcm = pcm[:opt.MaxSamples]
	}
	return pcm
}

// DownmixInterleaved averages interleaved multi-channel samples to mono.
func DownmixInterleaved(pcm []float32, channels int) []float32 {
	if channels <= 1 {
		return pcm
	}

	frames := len(pcm) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += pcm[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// ResampleLinear converts pcm from one sample rate to another using
// linear interpolation. Good enough for speech fed into a recognizer.
func ResampleLinear(pcm []float32, from, to int) []float32 {
	if from == to || len(pcm) == 0 {
		return pcm
	}

	ratio := float64(from) / float64(to)
	n := int(math.Floor(float64(len(pcm)) / ratio))
	if n <= 0 {
		return nil
	}

	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(pcm)-1 {
			out[i] = pcm[len(pcm)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = pcm[j]*(1-frac) + pcm[j+1]*frac
	}
	return out
}

// Int16ToFloat32 converts PCM samples to float32 in [-1, 1].
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	const scale = 1.0 / 32768.0
	for i, v := range samples {
		out[i] = float32(v) * scale
	}
	return out
}

// Float32ToInt16 converts float32 samples in [-1, 1] to PCM, clipping
// anything outside the range.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		v = clampf(v)
		out[i] = int16(v * 32767)
	}
	return out
}

func clampf(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
