package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/rs/zerolog/log"
)

var fourCCMime = map[string]string{
	"VP80": webrtc.MimeTypeVP8,
	"VP90": webrtc.MimeTypeVP9,
	"AV01": webrtc.MimeTypeAV1,
}

// IVFSource plays an IVF file into a LocalTrack in a loop, paced by the
// file's timebase.
type IVFSource struct {
	path  string
	file  *os.File
	track *LocalTrack
	frame time.Duration
}

func OpenIVF(path string) (*IVFSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ivf header %s: %w", path, err)
	}
	mime, ok := fourCCMime[header.FourCC]
	if !ok {
		_ = f.Close()
		return nil, fmt.Errorf("ivf %s: unsupported fourcc %q", path, header.FourCC)
	}
	track, err := NewLocalTrack(webrtc.RTPCodecCapability{MimeType: mime, ClockRate: 90000}, "ivf")
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	frame := time.Second / 30
	if header.TimebaseDenominator != 0 {
		frame = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}
	return &IVFSource{path: path, file: f, track: track, frame: frame}, nil
}

func (s *IVFSource) Track() *LocalTrack { return s.track }

// Run writes frames until ctx is done or the track is stopped. The file is
// rewound at EOF.
func (s *IVFSource) Run(ctx context.Context) error {
	defer s.file.Close()

	reader, err := s.rewind()
	if err != nil {
		return err
	}
	ticker := time.NewTicker(s.frame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.track.Stopped():
			return nil
		case <-ticker.C:
		}

		data, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if reader, err = s.rewind(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("ivf frame: %w", err)
		}
		if err := s.track.WriteSample(data, s.frame); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("path", s.path).Msg("ivf write sample")
		}
	}
}

func (s *IVFSource) rewind() (*ivfreader.IVFReader, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	reader, _, err := ivfreader.NewWith(s.file)
	if err != nil {
		return nil, fmt.Errorf("ivf header %s: %w", s.path, err)
	}
	return reader, nil
}
