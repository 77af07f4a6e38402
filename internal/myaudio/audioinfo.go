// Package myaudio inspects recording headers before they are handed to the
// detection model, so unreadable files fail individually instead of taking
// a whole batch down with them.
package myaudio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
)

// AudioInfo describes the stream parameters of a recording.
type AudioInfo struct {
	SampleRate   int
	TotalSamples int
	NumChannels  int
	BitDepth     int
}

// ErrUnsupportedFormat is returned for extensions without a header reader.
var ErrUnsupportedFormat = errors.NewStd("unsupported audio format")

// GetAudioInfo opens path and reads its header.
func GetAudioInfo(path string) (AudioInfo, error) {
	file, err := os.Open(path) //nolint:gosec // path comes from site discovery
	if err != nil {
		return AudioInfo{}, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			Context("operation", "open_audio").
			FileContext(path, 0).
			Build()
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			GetLogger().Debug("failed to close audio file", logger.Error(cerr))
		}
	}()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return readWAVInfo(file)
	case ".flac":
		return readFLACInfo(file)
	default:
		return AudioInfo{}, errors.New(fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Build()
	}
}

// Validate reports whether path holds a decodable, non-empty recording.
// Formats without a header reader pass through unchecked; the model decides.
func Validate(path string) error {
	info, err := GetAudioInfo(path)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return nil
		}
		return err
	}
	if info.TotalSamples <= 0 {
		return errors.Newf("recording contains no samples").
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("sample_rate", info.SampleRate).
			Build()
	}
	return nil
}

func readWAVInfo(file *os.File) (AudioInfo, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return AudioInfo{}, invalid("invalid WAV file format")
	}
	if decoder.SampleRate == 0 {
		return AudioInfo{}, invalid("WAV header declares zero sample rate")
	}
	if decoder.BitDepth == 0 || decoder.BitDepth%8 != 0 {
		return AudioInfo{}, invalid(fmt.Sprintf("unsupported bit depth: %d", decoder.BitDepth))
	}
	if decoder.NumChans == 0 {
		return AudioInfo{}, invalid("WAV header declares zero channels")
	}

	// PCMSize is only known once the decoder has walked to the data chunk.
	if err := decoder.FwdToPCM(); err != nil {
		return AudioInfo{}, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("format", "wav").
			Context("operation", "find_pcm_chunk").
			Build()
	}

	bytesPerFrame := int64(decoder.BitDepth/8) * int64(decoder.NumChans)
	totalSamples := decoder.PCMLen() / bytesPerFrame

	return AudioInfo{
		SampleRate:   int(decoder.SampleRate),
		TotalSamples: int(totalSamples),
		NumChannels:  int(decoder.NumChans),
		BitDepth:     int(decoder.BitDepth),
	}, nil
}

func readFLACInfo(file *os.File) (AudioInfo, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return AudioInfo{}, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("format", "flac").
			Build()
	}

	return AudioInfo{
		SampleRate:   decoder.SampleRate,
		TotalSamples: int(decoder.TotalSamples),
		NumChannels:  decoder.NChannels,
		BitDepth:     decoder.BitsPerSample,
	}, nil
}

func invalid(msg string) error {
	return errors.Newf("%s", msg).
		Component("myaudio").
		Category(errors.CategoryValidation).
		Build()
}
