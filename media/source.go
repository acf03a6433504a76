// Package media provides capture sources and render sinks for hosts that
// have no display to capture or show, such as the screenshare CLI.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"screenshare/core"
	"screenshare/negotiation"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/sirupsen/logrus"
)

// FileSource plays an IVF file as if it were a captured display.
type FileSource struct {
	Path string
	// Loop restarts the file at EOF instead of ending the stream.
	Loop bool
}

func codecForFourCC(fourcc string) (string, error) {
	switch fourcc {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	}
	return "", fmt.Errorf("unsupported ivf codec %q", fourcc)
}

func (s *FileSource) Acquire(ctx context.Context, constraints negotiation.Constraints) (negotiation.MediaStream, error) {
	if !constraints.Video {
		return nil, fmt.Errorf("%w: file source only provides video", core.ErrNoSourceAvailable)
	}

	reader, header, file, err := s.open()
	if err != nil {
		return nil, err
	}

	mimeType, err := codecForFourCC(header.FourCC)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", core.ErrNoSourceAvailable, err)
	}

	id := ulid.Make().String()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mimeType}, "video", id)
	if err != nil {
		file.Close()
		return nil, err
	}

	frameDuration := time.Second / 30
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frameDuration = time.Duration(header.TimebaseNumerator) * time.Second / time.Duration(header.TimebaseDenominator)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	stream := &FileStream{
		id:       id,
		track:    track,
		cancel:   cancel,
		finished: make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"path":      s.Path,
		"codec":     mimeType,
		"width":     header.Width,
		"height":    header.Height,
		"frame_dur": frameDuration,
	}).Info("Capturing from file")

	go s.pump(pumpCtx, stream, reader, file, frameDuration)
	return stream, nil
}

func (s *FileSource) open() (*ivfreader.IVFReader, *ivfreader.IVFFileHeader, *os.File, error) {
	file, err := os.Open(s.Path)
	switch {
	case errors.Is(err, os.ErrPermission):
		return nil, nil, nil, fmt.Errorf("%w: %v", core.ErrPermissionDenied, err)
	case err != nil:
		return nil, nil, nil, fmt.Errorf("%w: %v", core.ErrNoSourceAvailable, err)
	}

	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, nil, nil, fmt.Errorf("%w: %v", core.ErrNoSourceAvailable, err)
	}
	return reader, header, file, nil
}

func (s *FileSource) pump(ctx context.Context, stream *FileStream, reader *ivfreader.IVFReader, file *os.File, frameDuration time.Duration) {
	defer func() {
		file.Close()
		stream.end()
	}()

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) && s.Loop {
			file.Close()
			if reader, _, file, err = s.open(); err != nil {
				logrus.WithError(err).Warn("Failed to restart file capture")
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logrus.WithError(err).Warn("Failed to read frame")
			}
			return
		}

		if err := stream.track.WriteSample(pionmedia.Sample{Data: frame, Duration: frameDuration}); err != nil {
			logrus.WithError(err).Debug("Failed to write sample")
		}
	}
}

// FileStream is the stream produced by FileSource. It ends on its own at
// EOF unless the source loops.
type FileStream struct {
	id     string
	track  *webrtc.TrackLocalStaticSample
	cancel context.CancelFunc

	mu       sync.Mutex
	ended    []func()
	done     bool
	finished chan struct{}
}

func (s *FileStream) ID() string { return s.id }

func (s *FileStream) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.track}
}

// Stop releases the file. OnEnded callbacks do not run for an explicit stop.
func (s *FileStream) Stop() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	s.cancel()
}

func (s *FileStream) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, fn)
}

// Done is closed once the file is released.
func (s *FileStream) Done() <-chan struct{} {
	return s.finished
}

func (s *FileStream) end() {
	s.mu.Lock()
	callbacks := s.ended
	stopped := s.done
	s.done = true
	s.mu.Unlock()

	close(s.finished)
	if stopped {
		return
	}
	for _, fn := range callbacks {
		fn()
	}
}
