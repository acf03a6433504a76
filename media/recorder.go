package media

import (
	"fmt"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/sirupsen/logrus"
)

// IVFRecorder writes the received VP8 track to path.
func IVFRecorder(path string) HandlerFactory {
	return func(codec webrtc.RTPCodecParameters) (PacketHandler, error) {
		if !strings.EqualFold(codec.MimeType, webrtc.MimeTypeVP8) {
			return nil, fmt.Errorf("cannot record %s to ivf", codec.MimeType)
		}
		w, err := ivfwriter.New(path)
		if err != nil {
			return nil, fmt.Errorf("create recording: %w", err)
		}
		logrus.WithField("path", path).Info("Recording remote stream")
		return &ivfHandler{w: w}, nil
	}
}

type ivfHandler struct {
	w *ivfwriter.IVFWriter
}

func (h *ivfHandler) HandlePacket(pkt *rtp.Packet) error { return h.w.WriteRTP(pkt) }
func (h *ivfHandler) Close() error                       { return h.w.Close() }
