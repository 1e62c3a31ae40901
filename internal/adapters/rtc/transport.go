package rtc

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Transport connects eagerly: it gathers, raises the connect negotiation,
// and once the peer accepted starts ICE as the controlling agent and DTLS as
// client against the SFU.
type Transport struct {
	id   domain.TransportID
	role core.Role
	api  *webrtc.API
	opts domain.TransportOptions
	sink core.NegotiationSink
	log  zerolog.Logger

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	ctx    context.Context
	cancel context.CancelFunc

	ready   chan struct{}
	connErr error

	mids      atomic.Uint32
	closeOnce sync.Once
}

var _ core.Transport = (*Transport)(nil)

func newTransport(api *webrtc.API, role core.Role, opts domain.TransportOptions, sink core.NegotiationSink) (*Transport, error) {
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: iceServers(opts.ICEServers)})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		id:       opts.ID,
		role:     role,
		api:      api,
		opts:     opts,
		sink:     sink,
		log:      log.With().Str("module", "rtc").Str("transport", string(opts.ID)).Str("role", role.String()).Logger(),
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
	}

	ice.OnConnectionStateChange(func(s webrtc.ICETransportState) {
		t.log.Info().Str("ice_state", s.String()).Msg("ICE state")
	})
	dtls.OnStateChange(func(s webrtc.DTLSTransportState) {
		t.log.Info().Str("dtls_state", s.String()).Msg("DTLS state")
	})

	go t.connect()
	return t, nil
}

func (t *Transport) ID() domain.TransportID { return t.id }
func (t *Transport) Role() core.Role        { return t.role }

func (t *Transport) connect() {
	defer close(t.ready)
	if err := t.doConnect(); err != nil {
		t.connErr = err
		t.log.Error().Err(err).Msg("connect failed")
		return
	}
	t.log.Info().Msg("transport connected")
}

func (t *Transport) doConnect() error {
	gathered := make(chan struct{})
	var once sync.Once
	t.gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(gathered) })
		}
	})
	if err := t.gatherer.Gather(); err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	select {
	case <-gathered:
	case <-t.ctx.Done():
		return t.ctx.Err()
	}

	local, err := t.dtls.GetLocalParameters()
	if err != nil {
		return fmt.Errorf("local dtls parameters: %w", err)
	}
	ev := core.NewConnectNegotiation(t.role, fromDtlsParameters(local, domain.DtlsRoleClient))
	t.sink(ev)
	if _, err := ev.Completion.Wait(t.ctx); err != nil {
		return err
	}

	candidates, err := iceCandidates(t.opts.IceCandidates)
	if err != nil {
		return err
	}
	if err := t.ice.SetRemoteCandidates(candidates); err != nil {
		return fmt.Errorf("remote candidates: %w", err)
	}
	role := webrtc.ICERoleControlling
	if err := t.ice.Start(nil, iceParameters(t.opts.IceParameters), &role); err != nil {
		return fmt.Errorf("ice start: %w", err)
	}

	remote := toDtlsParameters(t.opts.DtlsParameters)
	remote.Role = webrtc.DTLSRoleServer
	if err := t.dtls.Start(remote); err != nil {
		return fmt.Errorf("dtls start: %w", err)
	}
	return nil
}

func (t *Transport) waitConnected(ctx context.Context) error {
	select {
	case <-t.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if t.connErr != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, t.connErr)
	}
	return nil
}

// Produce offers track to the SFU. track must come from NewLocalTrack.
func (t *Transport) Produce(ctx context.Context, track core.Track, hints ...core.EncodingHint) (core.Producer, error) {
	if t.role != core.Outbound {
		return nil, fmt.Errorf("produce: %w", ErrWrongRole)
	}
	lt, ok := track.(*LocalTrack)
	if !ok {
		return nil, ErrForeignTrack
	}

	sender, err := t.api.NewRTPSender(lt.track, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: %w", err)
	}
	sp := sender.GetParameters()
	codec, ok := findCodec(sp.Codecs, lt.codec.MimeType)
	if !ok {
		_ = sender.Stop()
		return nil, fmt.Errorf("produce: codec %s not negotiated", lt.codec.MimeType)
	}

	params := domain.RtpParameters{
		Mid:    strconv.FormatUint(uint64(t.mids.Add(1)-1), 10),
		Codecs: []domain.RtpCodecParameters{fromCodecParameters(codec)},
		Rtcp:   &domain.RtcpParameters{Cname: lt.track.StreamID(), ReducedSize: true},
	}
	for i, enc := range sp.Encodings {
		e := domain.RtpEncodingParameters{SSRC: uint32(enc.SSRC), RID: enc.RID}
		if i < len(hints) {
			e.MaxBitrate = hints[i].MaxBitrate
			e.Dtx = hints[i].Dtx
		}
		params.Encodings = append(params.Encodings, e)
	}

	ev := core.NewProduceNegotiation(lt.Kind(), params)
	t.sink(ev)
	id, err := ev.Completion.Wait(ctx)
	if err != nil {
		_ = sender.Stop()
		return nil, err
	}

	if err := sender.Send(sp); err != nil {
		_ = sender.Stop()
		return nil, fmt.Errorf("rtp send: %w", err)
	}
	go drainRTCP(sender)

	t.log.Info().Str("producer", string(id)).Str("mime", codec.MimeType).Msg("producing")
	return &Producer{id: id, kind: lt.Kind(), sender: sender}, nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// Consume starts receiving the stream the SFU described. It waits for the
// transport to finish connecting.
func (t *Transport) Consume(ctx context.Context, params core.ConsumeParams) (core.Consumer, error) {
	if t.role != core.Inbound {
		return nil, fmt.Errorf("consume: %w", ErrWrongRole)
	}
	if len(params.RtpParameters.Encodings) == 0 {
		return nil, ErrNoEncodings
	}
	if len(params.RtpParameters.Codecs) == 0 {
		return nil, ErrUnknownCodecs
	}
	if err := t.waitConnected(ctx); err != nil {
		return nil, err
	}

	receiver, err := t.api.NewRTPReceiver(codecType(params.Kind), t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp receiver: %w", err)
	}
	enc := params.RtpParameters.Encodings[0]
	codec := params.RtpParameters.Codecs[0]
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(enc.SSRC),
				PayloadType: webrtc.PayloadType(codec.PayloadType),
			},
		}},
	})
	if err != nil {
		_ = receiver.Stop()
		return nil, fmt.Errorf("rtp receive: %w", err)
	}

	if params.Kind == domain.MediaKindVideo {
		pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: enc.SSRC}}
		if _, err := t.dtls.WriteRTCP(pli); err != nil {
			t.log.Warn().Err(err).Msg("keyframe request")
		}
	}

	t.log.Info().Str("producer", string(params.ProducerID)).Str("consumer", string(params.ID)).Str("mime", codec.MimeType).Msg("consuming")
	return &Consumer{
		id:         params.ID,
		producerID: params.ProducerID,
		kind:       params.Kind,
		track:      newRemoteTrack(receiver, params.Kind, codec.MimeType),
	}, nil
}

// Close stops DTLS, ICE and the gatherer. It is idempotent.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		if err := t.dtls.Stop(); err != nil {
			t.log.Warn().Err(err).Msg("dtls stop")
		}
		if err := t.ice.Stop(); err != nil {
			t.log.Warn().Err(err).Msg("ice stop")
		}
		if err := t.gatherer.Close(); err != nil {
			t.log.Warn().Err(err).Msg("gatherer close")
		}
		t.log.Info().Msg("transport closed")
	})
}
