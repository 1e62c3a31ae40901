// Package rtc implements the media engine on pion's ORTC objects: one ICE
// gatherer, ICE transport and DTLS transport per signaling transport, with
// RTP senders and receivers bound to the parameters the SFU hands out.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotLoaded     = errors.New("capabilities not loaded")
	ErrNoCodecs      = errors.New("no supported codec in router capabilities")
	ErrForeignTrack  = errors.New("track was not created by this engine")
	ErrWrongRole     = errors.New("operation not supported on this transport")
	ErrNotConnected  = errors.New("transport did not connect")
	ErrNoEncodings   = errors.New("rtp parameters without encodings")
	ErrUnknownCodecs = errors.New("rtp parameters without codecs")
)

var supportedMimeTypes = []string{
	webrtc.MimeTypeOpus,
	webrtc.MimeTypePCMU,
	webrtc.MimeTypePCMA,
	webrtc.MimeTypeG722,
	webrtc.MimeTypeVP8,
	webrtc.MimeTypeVP9,
	webrtc.MimeTypeH264,
	webrtc.MimeTypeAV1,
}

type EngineOptions struct {
	// VerboseLogs passes pion debug logging through unchanged.
	VerboseLogs bool
}

type Engine struct {
	opts EngineOptions

	mu     sync.Mutex
	api    *webrtc.API
	codecs map[domain.MediaKind][]webrtc.RTPCodecParameters
}

var _ core.Engine = (*Engine)(nil)

func NewEngine(opts EngineOptions) *Engine {
	return &Engine{opts: opts}
}

func supported(mime string) bool {
	for _, m := range supportedMimeTypes {
		if strings.EqualFold(m, mime) {
			return true
		}
	}
	return false
}

// LoadCapabilities registers every router codec pion can handle, keeping the
// router's payload types, and returns them as the local capabilities.
func (e *Engine) LoadCapabilities(ctx context.Context, router domain.RtpCapabilities) (domain.RtpCapabilities, error) {
	if err := ctx.Err(); err != nil {
		return domain.RtpCapabilities{}, err
	}

	m := &webrtc.MediaEngine{}
	local := domain.RtpCapabilities{}
	codecs := make(map[domain.MediaKind][]webrtc.RTPCodecParameters)
	for _, c := range router.Codecs {
		if !supported(c.MimeType) {
			continue
		}
		params := codecParameters(c)
		if err := m.RegisterCodec(params, codecType(c.Kind)); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("mime", c.MimeType).Msg("skipping codec")
			continue
		}
		codecs[c.Kind] = append(codecs[c.Kind], params)
		local.Codecs = append(local.Codecs, c)
	}
	if len(local.Codecs) == 0 {
		return domain.RtpCapabilities{}, ErrNoCodecs
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return domain.RtpCapabilities{}, fmt.Errorf("register interceptors: %w", err)
	}

	s := webrtc.SettingEngine{
		LoggerFactory: loggerFactory{verbose: e.opts.VerboseLogs},
	}
	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(s),
	)

	e.mu.Lock()
	e.api = api
	e.codecs = codecs
	e.mu.Unlock()

	log.Info().Str("module", "rtc").Int("codecs", len(local.Codecs)).Msg("capabilities loaded")
	return local, nil
}

func (e *Engine) CreateOutboundTransport(opts domain.TransportOptions, sink core.NegotiationSink) (core.Transport, error) {
	return e.createTransport(core.Outbound, opts, sink)
}

func (e *Engine) CreateInboundTransport(opts domain.TransportOptions, sink core.NegotiationSink) (core.Transport, error) {
	return e.createTransport(core.Inbound, opts, sink)
}

func (e *Engine) createTransport(role core.Role, opts domain.TransportOptions, sink core.NegotiationSink) (core.Transport, error) {
	e.mu.Lock()
	api := e.api
	e.mu.Unlock()
	if api == nil {
		return nil, ErrNotLoaded
	}
	return newTransport(api, role, opts, sink)
}

// Codec returns the registered codec for mime, if any.
func (e *Engine) Codec(mime string) (webrtc.RTPCodecParameters, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cs := range e.codecs {
		if c, ok := findCodec(cs, mime); ok {
			return c, true
		}
	}
	return webrtc.RTPCodecParameters{}, false
}
