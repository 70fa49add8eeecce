// Package stanza builds the COLIBRI and Jingle XML payloads the focus
// speaks. Every builder here is a pure function: given typed inputs it
// returns a wire element, and never touches room or participant state —
// state mutation happens only after a build succeeds (see the Focus
// Controller in internal/focus).
package stanza

import (
	"encoding/xml"
	"fmt"

	"github.com/otalk/mod-muc-focus/internal/xmppns"
)

// Source is a single SSRC advertisement, carried in ssma:0 source elements
// and inside COLIBRI channels.
type Source struct {
	SSRC       uint32
	MSID       string
	Parameters map[string]string // cname, label, mslabel, ...
}

// SourceGroup is an FID (or other) grouping of SSRCs, e.g. a video stream's
// primary + RTX pair.
type SourceGroup struct {
	Semantics string // "FID", "SIM", ...
	SSRCs     []uint32
}

// EndpointChannels is the bridge-assigned channel set for one endpoint,
// as returned by a COLIBRI create/update result.
type EndpointChannels struct {
	Endpoint string
	Audio    ChannelInfo
	Video    ChannelInfo
	Data     *DataChannelInfo // nil unless datachannels are enabled
}

// ChannelInfo is one bridge-assigned audio or video channel.
type ChannelInfo struct {
	ID        string
	RTPLevel  string // rtp-level-relay-type, e.g. "mixer" or "translator"
	Transport ICETransport
}

// DataChannelInfo is one bridge-assigned SCTP connection.
type DataChannelInfo struct {
	ID   string
	Port int
}

// ICETransport is the bridge's half of an ICE-UDP + DTLS transport.
type ICETransport struct {
	Pwd         string
	UFrag       string
	Candidates  []ICECandidate
	Fingerprint string
	HashAlgo    string
}

// ICECandidate is a single ICE-UDP candidate.
type ICECandidate struct {
	Foundation string
	Component  int
	Protocol   string
	Priority   uint32
	IP         string
	Port       int
	Type       string
	Generation int
}

// CreateConferenceOptions parameterizes a COLIBRI conference-create (or, if
// ConferenceID is non-empty, a conference-update reusing the bridge's
// existing conference).
type CreateConferenceOptions struct {
	ConferenceID    string // empty for a first create
	UseBundle       bool
	UseDataChannels bool
	UseRTX          bool
	Endpoints       []string // ordered nicknames this request allocates channels for
	Codecs          CodecConfig
}

// colibriConference is the wire element for a COLIBRI IQ body.
type colibriConference struct {
	XMLName  xml.Name         `xml:"http://jitsi.org/protocol/colibri conference"`
	ID       string           `xml:"id,attr,omitempty"`
	Contents []colibriContent `xml:"content"`
}

type colibriContent struct {
	Name            string                  `xml:"name,attr"`
	PayloadTypes    []colibriPayloadType    `xml:"payload-type,omitempty"`
	HdrExts         []colibriHdrExt         `xml:"http://jitsi.org/protocol/colibri rtp-hdrext,omitempty"`
	Channels        []colibriChannel        `xml:"channel,omitempty"`
	SCTPConnections []colibriSCTPConnection `xml:"sctpconnection,omitempty"`
	SSRCGroups      []jingleSourceGroup     `xml:"ssrc-group,omitempty"`
}

type colibriPayloadType struct {
	ID         int                `xml:"id,attr"`
	Name       string             `xml:"name,attr"`
	ClockRate  int                `xml:"clockrate,attr"`
	Channels   int                `xml:"channels,attr,omitempty"`
	Parameters []colibriParameter `xml:"parameter,omitempty"`
	Feedback   []colibriRTCPFB    `xml:"http://jitsi.org/protocol/colibri rtcp-fb,omitempty"`
}

type colibriParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type colibriRTCPFB struct {
	Type    string `xml:"type,attr"`
	Subtype string `xml:"subtype,attr,omitempty"`
}

type colibriHdrExt struct {
	ID  int    `xml:"id,attr"`
	URI string `xml:"uri,attr"`
}

type colibriChannel struct {
	ID              string             `xml:"id,attr,omitempty"`
	Endpoint        string             `xml:"endpoint,attr,omitempty"`
	ChannelBundleID string             `xml:"channel-bundle-id,attr,omitempty"`
	Expire          *int               `xml:"expire,attr"`
	RTPLevelRelay   string             `xml:"rtp-level-relay-type,attr,omitempty"`
	Sources         []colibriSourceRef `xml:"source,omitempty"`
}

type colibriSourceRef struct {
	SSRC string `xml:"ssrc,attr"`
}

type colibriSCTPConnection struct {
	ID       string `xml:"id,attr,omitempty"`
	Endpoint string `xml:"endpoint,attr,omitempty"`
	Port     int    `xml:"port,attr,omitempty"`
	Expire   *int   `xml:"expire,attr"`
}

func intPtr(v int) *int { return &v }

// BuildColibriCreate produces a conference-create (ConferenceID empty) or
// conference-update (ConferenceID set) element allocating one audio and
// video channel — and, if enabled, one SCTP connection — per endpoint in
// opts.Endpoints. When bundling, each channel carries a channel-bundle-id
// equal to the endpoint id.
func BuildColibriCreate(opts CreateConferenceOptions) any {
	conf := colibriConference{ID: opts.ConferenceID}

	audio := colibriContent{Name: "audio", PayloadTypes: payloadTypesToWire(opts.Codecs.Audio)}
	video := colibriContent{Name: "video", PayloadTypes: payloadTypesToWire(opts.Codecs.Video)}
	for _, ext := range opts.Codecs.AudioHdrExt {
		audio.HdrExts = append(audio.HdrExts, colibriHdrExt{ID: ext.ID, URI: ext.URI})
	}
	for _, ext := range opts.Codecs.VideoHdrExt {
		video.HdrExts = append(video.HdrExts, colibriHdrExt{ID: ext.ID, URI: ext.URI})
	}

	var data colibriContent
	if opts.UseDataChannels {
		data = colibriContent{Name: "data"}
	}

	for _, ep := range opts.Endpoints {
		bundleID := ""
		if opts.UseBundle {
			bundleID = ep
		}
		audio.Channels = append(audio.Channels, colibriChannel{Endpoint: ep, ChannelBundleID: bundleID})
		video.Channels = append(video.Channels, colibriChannel{Endpoint: ep, ChannelBundleID: bundleID})
		if opts.UseDataChannels {
			data.SCTPConnections = append(data.SCTPConnections, colibriSCTPConnection{Endpoint: ep})
		}
	}

	conf.Contents = append(conf.Contents, audio, video)
	if opts.UseDataChannels {
		conf.Contents = append(conf.Contents, data)
	}
	return &conf
}

func payloadTypesToWire(pts []PayloadType) []colibriPayloadType {
	out := make([]colibriPayloadType, 0, len(pts))
	for _, pt := range pts {
		wire := colibriPayloadType{ID: pt.ID, Name: pt.Name, ClockRate: pt.ClockRate, Channels: pt.Channels}
		for name, value := range pt.Parameters {
			wire.Parameters = append(wire.Parameters, colibriParameter{Name: name, Value: value})
		}
		for _, fb := range pt.FeedbackTypes {
			wire.Feedback = append(wire.Feedback, colibriRTCPFB{Type: fb})
		}
		out = append(out, wire)
	}
	return out
}

// EndpointUpdate is one endpoint's worth of translated Jingle contents
// (from session-accept/source-add/source-remove) ready to fold into a
// COLIBRI conference-update.
type EndpointUpdate struct {
	Endpoint     string
	AudioSources []Source
	VideoSources []Source
	AudioGroups  []SourceGroup
	VideoGroups  []SourceGroup
	RTCPMux      bool
}

// BuildColibriUpdate translates one endpoint's accepted/added/removed
// sources into a conference-update for that endpoint's channels, carrying
// the current full source list (the bridge update is a replace, not a
// delta) plus any FID groupings.
func BuildColibriUpdate(conferenceID string, upd EndpointUpdate) any {
	conf := colibriConference{ID: conferenceID}

	audio := colibriContent{Name: "audio", Channels: []colibriChannel{channelWithSources(upd.Endpoint, upd.AudioSources)}}
	for _, g := range upd.AudioGroups {
		audio.SSRCGroups = append(audio.SSRCGroups, sourceGroupToWire(g))
	}

	video := colibriContent{Name: "video", Channels: []colibriChannel{channelWithSources(upd.Endpoint, upd.VideoSources)}}
	for _, g := range upd.VideoGroups {
		video.SSRCGroups = append(video.SSRCGroups, sourceGroupToWire(g))
	}

	conf.Contents = []colibriContent{audio, video}
	return &conf
}

func channelWithSources(endpoint string, sources []Source) colibriChannel {
	ch := colibriChannel{Endpoint: endpoint}
	for _, s := range sources {
		ch.Sources = append(ch.Sources, colibriSourceRef{SSRC: fmt.Sprintf("%d", s.SSRC)})
	}
	return ch
}

func sourceGroupToWire(g SourceGroup) jingleSourceGroup {
	wire := jingleSourceGroup{Semantics: g.Semantics}
	for _, ssrc := range g.SSRCs {
		wire.Sources = append(wire.Sources, jingleSSRCRef{SSRC: fmt.Sprintf("%d", ssrc)})
	}
	return wire
}

// BuildColibriExpire produces a minimal conference-update expiring every
// channel id given (expire=0 on each).
func BuildColibriExpire(conferenceID string, channelIDs []string) any {
	conf := colibriConference{ID: conferenceID}
	content := colibriContent{Name: "expire"}
	for _, id := range channelIDs {
		content.Channels = append(content.Channels, colibriChannel{ID: id, Expire: intPtr(0)})
	}
	conf.Contents = []colibriContent{content}
	return &conf
}

// namespace is the colibri IQ body's namespace, aliased from xmppns for use
// inside this package.
const namespace = xmppns.Colibri
