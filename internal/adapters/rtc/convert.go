package rtc

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/pion/webrtc/v4"
)

func iceServers(in []domain.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(in))
	for _, s := range in {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}

func iceParameters(p domain.IceParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.IceLite,
	}
}

func iceCandidates(in []domain.IceCandidate) ([]webrtc.ICECandidate, error) {
	out := make([]webrtc.ICECandidate, 0, len(in))
	for _, c := range in {
		proto, err := webrtc.NewICEProtocol(c.Protocol)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		typ, err := webrtc.NewICECandidateType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		out = append(out, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Host(),
			Protocol:   proto,
			Port:       c.Port,
			Typ:        typ,
			Component:  1,
			TCPType:    c.TCPType,
		})
	}
	return out, nil
}

func dtlsRole(r domain.DtlsRole) webrtc.DTLSRole {
	switch r {
	case domain.DtlsRoleClient:
		return webrtc.DTLSRoleClient
	case domain.DtlsRoleServer:
		return webrtc.DTLSRoleServer
	default:
		return webrtc.DTLSRoleAuto
	}
}

func toDtlsParameters(p domain.DtlsParameters) webrtc.DTLSParameters {
	out := webrtc.DTLSParameters{Role: dtlsRole(p.Role)}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

func fromDtlsParameters(p webrtc.DTLSParameters, role domain.DtlsRole) domain.DtlsParameters {
	out := domain.DtlsParameters{Role: role}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, domain.DtlsFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

func codecType(k domain.MediaKind) webrtc.RTPCodecType {
	return webrtc.NewRTPCodecType(string(k))
}

// fmtpLine renders codec parameters the way they appear in an a=fmtp line,
// keys sorted.
func fmtpLine(params map[string]any) string {
	keys := slices.Sorted(maps.Keys(params))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ";")
}

// fmtpParams is the inverse of fmtpLine. Numeric values stay strings unless
// they parse as integers.
func fmtpParams(line string) map[string]any {
	if line == "" {
		return nil
	}
	out := make(map[string]any)
	for _, kv := range strings.Split(line, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && fmt.Sprint(n) == v {
			out[k] = n
			continue
		}
		out[k] = v
	}
	return out
}

func rtcpFeedback(in []domain.RtcpFeedback) []webrtc.RTCPFeedback {
	out := make([]webrtc.RTCPFeedback, 0, len(in))
	for _, fb := range in {
		out = append(out, webrtc.RTCPFeedback{Type: fb.Type, Parameter: fb.Parameter})
	}
	return out
}

func fromRtcpFeedback(in []webrtc.RTCPFeedback) []domain.RtcpFeedback {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.RtcpFeedback, 0, len(in))
	for _, fb := range in {
		out = append(out, domain.RtcpFeedback{Type: fb.Type, Parameter: fb.Parameter})
	}
	return out
}

func codecParameters(c domain.RtpCodecCapability) webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     c.MimeType,
			ClockRate:    c.ClockRate,
			Channels:     c.Channels,
			SDPFmtpLine:  fmtpLine(c.Parameters),
			RTCPFeedback: rtcpFeedback(c.RtcpFeedback),
		},
		PayloadType: webrtc.PayloadType(c.PreferredPayloadType),
	}
}

func fromCodecParameters(c webrtc.RTPCodecParameters) domain.RtpCodecParameters {
	return domain.RtpCodecParameters{
		MimeType:     c.MimeType,
		PayloadType:  uint8(c.PayloadType),
		ClockRate:    c.ClockRate,
		Channels:     c.Channels,
		Parameters:   fmtpParams(c.SDPFmtpLine),
		RtcpFeedback: fromRtcpFeedback(c.RTCPFeedback),
	}
}

func findCodec(codecs []webrtc.RTPCodecParameters, mime string) (webrtc.RTPCodecParameters, bool) {
	for _, c := range codecs {
		if strings.EqualFold(c.MimeType, mime) {
			return c, true
		}
	}
	return webrtc.RTPCodecParameters{}, false
}
