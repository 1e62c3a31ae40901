package domain

type Action string

// Client to server actions. ActionInit and ActionProducerClosed travel in
// both directions.
const (
	ActionInit                     Action = "Init"
	ActionSendRtpCapabilities      Action = "SendRtpCapabilities"
	ActionConnectProducerTransport Action = "ConnectProducerTransport"
	ActionProduce                  Action = "Produce"
	ActionConnectConsumerTransport Action = "ConnectConsumerTransport"
	ActionConsume                  Action = "Consume"
	ActionResume                   Action = "Resume"
	ActionProducerClosed           Action = "ProducerClosed"
)

// Server to client actions.
const (
	ActionConnectedProducerTransport Action = "ConnectedProducerTransport"
	ActionProduced                   Action = "Produced"
	ActionNewProducers               Action = "NewProducers"
	ActionConnectedConsumerTransport Action = "ConnectedConsumerTransport"
	ActionConsumed                   Action = "Consumed"
)

// Envelope is the part every frame shares. RequestID is set on correlated
// requests and echoed back on their responses.
type Envelope struct {
	Action    Action `json:"action"`
	RequestID string `json:"requestId,omitempty"`
}

func (e *Envelope) Header() *Envelope { return e }

// Message is anything that can be written to the signaling channel.
type Message interface {
	Header() *Envelope
}

type ClientInit struct {
	Envelope
}

type SendRtpCapabilities struct {
	Envelope
	RtpCapabilities RtpCapabilities `json:"rtpCapabilities"`
}

type ConnectTransport struct {
	Envelope
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

type Produce struct {
	Envelope
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
}

type Consume struct {
	Envelope
	ProducerID ProducerID `json:"producerId"`
}

// ResponseMatcher is implemented by requests whose response names the
// request it answers. Peers that do not echo request ids rely on it to keep
// concurrent requests of the same action apart.
type ResponseMatcher interface {
	MatchesResponse(f Frame) bool
}

// MatchesResponse reports whether a Consumed frame is for this producer. A
// response without a producer id matches any request.
func (c *Consume) MatchesResponse(f Frame) bool {
	var resp Consumed
	if err := f.Decode(&resp); err != nil {
		return false
	}
	return resp.ProducerID == "" || resp.ProducerID == c.ProducerID
}

type Resume struct {
	Envelope
	ConsumerID ConsumerID `json:"consumerId"`
}

type ProducerClosed struct {
	Envelope
	ID ProducerID `json:"id"`
}

type ServerInit struct {
	Envelope
	RouterRtpCapabilities    RtpCapabilities  `json:"routerRtpCapabilities"`
	ProducerTransportOptions TransportOptions `json:"producerTransportOptions"`
	ConsumerTransportOptions TransportOptions `json:"consumerTransportOptions"`
}

// Connected is the body-less acknowledgement of a transport connect.
type Connected struct {
	Envelope
}

type Produced struct {
	Envelope
	ID ProducerID `json:"id"`
}

type NewProducers struct {
	Envelope
	IDs []ProducerID `json:"ids"`
}

type Consumed struct {
	Envelope
	ID            ConsumerID    `json:"id"`
	ProducerID    ProducerID    `json:"producerId"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
}

func NewClientInit() *ClientInit {
	return &ClientInit{Envelope{Action: ActionInit}}
}

func NewSendRtpCapabilities(caps RtpCapabilities) *SendRtpCapabilities {
	return &SendRtpCapabilities{Envelope: Envelope{Action: ActionSendRtpCapabilities}, RtpCapabilities: caps}
}

func NewConnectProducerTransport(p DtlsParameters) *ConnectTransport {
	return &ConnectTransport{Envelope: Envelope{Action: ActionConnectProducerTransport}, DtlsParameters: p}
}

func NewConnectConsumerTransport(p DtlsParameters) *ConnectTransport {
	return &ConnectTransport{Envelope: Envelope{Action: ActionConnectConsumerTransport}, DtlsParameters: p}
}

func NewProduce(kind MediaKind, params RtpParameters) *Produce {
	return &Produce{Envelope: Envelope{Action: ActionProduce}, Kind: kind, RtpParameters: params}
}

func NewConsume(id ProducerID) *Consume {
	return &Consume{Envelope: Envelope{Action: ActionConsume}, ProducerID: id}
}

func NewResume(id ConsumerID) *Resume {
	return &Resume{Envelope: Envelope{Action: ActionResume}, ConsumerID: id}
}

func NewProducerClosed(id ProducerID) *ProducerClosed {
	return &ProducerClosed{Envelope: Envelope{Action: ActionProducerClosed}, ID: id}
}

// Server side constructors, used by peers and tests.

func NewConnected(action Action) *Connected {
	return &Connected{Envelope: Envelope{Action: action}}
}

func NewProduced(id ProducerID) *Produced {
	return &Produced{Envelope: Envelope{Action: ActionProduced}, ID: id}
}

func NewNewProducers(ids ...ProducerID) *NewProducers {
	return &NewProducers{Envelope: Envelope{Action: ActionNewProducers}, IDs: ids}
}
