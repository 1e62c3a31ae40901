package rtc

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routerCaps() domain.RtpCapabilities {
	return domain.RtpCapabilities{
		Codecs: []domain.RtpCodecCapability{
			{Kind: domain.MediaKindAudio, MimeType: "audio/opus", PreferredPayloadType: 100, ClockRate: 48000, Channels: 2,
				Parameters: map[string]any{"useinbandfec": 1, "minptime": 10}},
			{Kind: domain.MediaKindVideo, MimeType: "video/VP8", PreferredPayloadType: 101, ClockRate: 90000,
				RtcpFeedback: []domain.RtcpFeedback{{Type: "nack"}, {Type: "nack", Parameter: "pli"}}},
			{Kind: domain.MediaKindVideo, MimeType: "video/H265", PreferredPayloadType: 102, ClockRate: 90000},
		},
	}
}

func TestLoadCapabilitiesKeepsSupportedCodecs(t *testing.T) {
	e := NewEngine(EngineOptions{})
	local, err := e.LoadCapabilities(context.Background(), routerCaps())
	require.NoError(t, err)

	require.Len(t, local.Codecs, 2)
	assert.Equal(t, "audio/opus", local.Codecs[0].MimeType)
	assert.Equal(t, "video/VP8", local.Codecs[1].MimeType)

	vp8, ok := e.Codec(webrtc.MimeTypeVP8)
	require.True(t, ok)
	assert.Equal(t, webrtc.PayloadType(101), vp8.PayloadType)
	opus, ok := e.Codec(webrtc.MimeTypeOpus)
	require.True(t, ok)
	assert.Equal(t, "minptime=10;useinbandfec=1", opus.SDPFmtpLine)
}

func TestLoadCapabilitiesWithoutCommonCodec(t *testing.T) {
	e := NewEngine(EngineOptions{})
	_, err := e.LoadCapabilities(context.Background(), domain.RtpCapabilities{
		Codecs: []domain.RtpCodecCapability{{Kind: domain.MediaKindVideo, MimeType: "video/H265", ClockRate: 90000}},
	})
	assert.ErrorIs(t, err, ErrNoCodecs)
}

func TestCreateTransportBeforeLoad(t *testing.T) {
	e := NewEngine(EngineOptions{})
	_, err := e.CreateOutboundTransport(domain.TransportOptions{ID: "t"}, nil)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestIceCandidates(t *testing.T) {
	got, err := iceCandidates([]domain.IceCandidate{
		{Foundation: "udpcandidate", Priority: 1076302079, IP: "10.0.0.1", Protocol: "udp", Port: 40000, Type: "host"},
		{Foundation: "tcpcandidate", Priority: 1076276479, Address: "10.0.0.2", Protocol: "tcp", Port: 40001, Type: "host", TCPType: "passive"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "10.0.0.1", got[0].Address)
	assert.Equal(t, webrtc.ICEProtocolUDP, got[0].Protocol)
	assert.Equal(t, webrtc.ICECandidateTypeHost, got[0].Typ)
	assert.Equal(t, webrtc.ICEProtocolTCP, got[1].Protocol)
	assert.Equal(t, "passive", got[1].TCPType)

	_, err = iceCandidates([]domain.IceCandidate{{Protocol: "sctp", Type: "host"}})
	assert.Error(t, err)
}

func TestDtlsParameters(t *testing.T) {
	in := domain.DtlsParameters{
		Role:         domain.DtlsRoleAuto,
		Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
	}
	p := toDtlsParameters(in)
	assert.Equal(t, webrtc.DTLSRoleAuto, p.Role)
	assert.Equal(t, "sha-256", p.Fingerprints[0].Algorithm)

	back := fromDtlsParameters(p, domain.DtlsRoleClient)
	assert.Equal(t, domain.DtlsRoleClient, back.Role)
	assert.Equal(t, in.Fingerprints, back.Fingerprints)
}

func TestFmtpParams(t *testing.T) {
	assert.Equal(t, map[string]any{
		"profile-level-id":   "42e01f",
		"packetization-mode": 1,
	}, fmtpParams("packetization-mode=1;profile-level-id=42e01f"))
	assert.Nil(t, fmtpParams(""))
	assert.Equal(t, "a=1;b=x", fmtpLine(map[string]any{"b": "x", "a": 1}))
}

func TestLocalTrackKind(t *testing.T) {
	audio, err := NewLocalTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.MediaKindAudio, audio.Kind())

	video, err := NewLocalTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "cam")
	require.NoError(t, err)
	assert.Equal(t, domain.MediaKindVideo, video.Kind())

	video.Stop()
	video.Stop()
	assert.NoError(t, video.WriteSample([]byte{0}, time.Millisecond))
}

func writeIVF(t *testing.T, fourcc string, frames ...[]byte) string {
	t.Helper()
	header := make([]byte, 32)
	copy(header[0:], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:], fourcc)
	binary.LittleEndian.PutUint16(header[12:], 640)
	binary.LittleEndian.PutUint16(header[14:], 480)
	binary.LittleEndian.PutUint32(header[16:], 30)
	binary.LittleEndian.PutUint32(header[20:], 1)
	binary.LittleEndian.PutUint32(header[24:], uint32(len(frames)))

	data := header
	for i, f := range frames {
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(f)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		data = append(data, fh...)
		data = append(data, f...)
	}
	path := filepath.Join(t.TempDir(), "in.ivf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestOpenIVF(t *testing.T) {
	src, err := OpenIVF(writeIVF(t, "VP80", []byte{1, 2, 3}, []byte{4, 5}))
	require.NoError(t, err)
	assert.Equal(t, webrtc.MimeTypeVP8, src.Track().MimeType())
	assert.InDelta(t, float64(time.Second/30), float64(src.frame), float64(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.NoError(t, src.Run(ctx))
}

func TestOpenIVFUnsupported(t *testing.T) {
	_, err := OpenIVF(writeIVF(t, "H264"))
	assert.ErrorContains(t, err, "unsupported fourcc")
}
