package sink

import (
	"strings"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

type WriterState int32

const (
	WriterStateOk WriterState = iota
	WriterStatePaused
	WriterStateDelete
)

// PacketWriter is anything a drained packet can be handed to.
type PacketWriter interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// Output is one destination of a sink with its own state.
type Output struct {
	Name   string
	Writer PacketWriter
	state  atomic.Int32
}

func NewOutput(name string, w PacketWriter) *Output {
	return &Output{Name: name, Writer: w}
}

func (o *Output) State() WriterState { return WriterState(o.state.Load()) }
func (o *Output) MarkOk()            { o.state.Store(int32(WriterStateOk)) }
func (o *Output) MarkPaused()        { o.state.Store(int32(WriterStatePaused)) }
func (o *Output) MarkDelete()        { o.state.Store(int32(WriterStateDelete)) }

// NewFileWriter opens a recorder for mime at base (without extension). It
// returns false for codecs that have no container here.
func NewFileWriter(base, mime string) (PacketWriter, string, bool, error) {
	switch strings.ToLower(mime) {
	case strings.ToLower(webrtc.MimeTypeVP8):
		path := base + ".ivf"
		w, err := ivfwriter.New(path)
		return w, path, true, err
	case strings.ToLower(webrtc.MimeTypeOpus):
		path := base + ".ogg"
		w, err := oggwriter.New(path, 48000, 2)
		return w, path, true, err
	default:
		return nil, "", false, nil
	}
}
