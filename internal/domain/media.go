// Package domain contains the wire model shared by the signaling layer and
// the transport engine: actions, frames and media parameter descriptions.
// Field names follow the mediasoup JSON shapes used by the SFU.
package domain

type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

type (
	ProducerID  string
	ConsumerID  string
	TransportID string
)

// RtpCapabilities is the set of codecs and header extensions a peer can
// encode or decode.
type RtpCapabilities struct {
	Codecs           []RtpCodecCapability    `json:"codecs,omitempty"`
	HeaderExtensions []RtpHeaderExtensionCap `json:"headerExtensions,omitempty"`
}

type RtpCodecCapability struct {
	Kind                 MediaKind      `json:"kind"`
	MimeType             string         `json:"mimeType"`
	PreferredPayloadType uint8          `json:"preferredPayloadType,omitempty"`
	ClockRate            uint32         `json:"clockRate"`
	Channels             uint16         `json:"channels,omitempty"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	RtcpFeedback         []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

type RtpHeaderExtensionCap struct {
	Kind             MediaKind `json:"kind"`
	URI              string    `json:"uri"`
	PreferredID      int       `json:"preferredId"`
	PreferredEncrypt bool      `json:"preferredEncrypt,omitempty"`
	Direction        string    `json:"direction,omitempty"`
}

type RtcpFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

// RtpParameters describes a single producer or consumer stream.
type RtpParameters struct {
	Mid              string                     `json:"mid,omitempty"`
	Codecs           []RtpCodecParameters       `json:"codecs"`
	HeaderExtensions []RtpHeaderExtensionParams `json:"headerExtensions,omitempty"`
	Encodings        []RtpEncodingParameters    `json:"encodings,omitempty"`
	Rtcp             *RtcpParameters            `json:"rtcp,omitempty"`
}

type RtpCodecParameters struct {
	MimeType     string         `json:"mimeType"`
	PayloadType  uint8          `json:"payloadType"`
	ClockRate    uint32         `json:"clockRate"`
	Channels     uint16         `json:"channels,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

type RtpHeaderExtensionParams struct {
	URI        string         `json:"uri"`
	ID         int            `json:"id"`
	Encrypt    bool           `json:"encrypt,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type RtpEncodingParameters struct {
	SSRC       uint32         `json:"ssrc,omitempty"`
	RID        string         `json:"rid,omitempty"`
	Rtx        *RtxParameters `json:"rtx,omitempty"`
	MaxBitrate uint64         `json:"maxBitrate,omitempty"`
	Dtx        bool           `json:"dtx,omitempty"`
}

type RtxParameters struct {
	SSRC uint32 `json:"ssrc"`
}

type RtcpParameters struct {
	Cname       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize"`
}
