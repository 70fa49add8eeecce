package stanza

import (
	"encoding/xml"
	"fmt"
)

// JingleAction is one of the action values this focus emits or accepts.
type JingleAction string

const (
	ActionSessionInitiate  JingleAction = "session-initiate"
	ActionSessionAccept    JingleAction = "session-accept"
	ActionSessionTerminate JingleAction = "session-terminate"
	ActionSessionInfo      JingleAction = "session-info"
	ActionSourceAdd        JingleAction = "source-add"
	ActionSourceRemove     JingleAction = "source-remove"
)

// TerminateReason is the reason child of a session-terminate.
type TerminateReason string

const (
	ReasonSuccess       TerminateReason = "success"
	ReasonGone          TerminateReason = "gone"
	ReasonFailedApp     TerminateReason = "failed-application"
	ReasonGeneralError  TerminateReason = "general-error"
)

// jingleIQ is the wire element carried as the payload of an IQ set.
type jingleIQ struct {
	XMLName  xml.Name         `xml:"urn:xmpp:jingle:1 jingle"`
	Action   string           `xml:"action,attr"`
	SID      string           `xml:"sid,attr"`
	Initiator string          `xml:"initiator,attr,omitempty"`
	Contents []jingleContent  `xml:"content,omitempty"`
	Grouping *jingleGrouping  `xml:"urn:xmpp:jingle:apps:grouping:0 group,omitempty"`
	Reason   *jingleReason    `xml:"reason,omitempty"`
	Mute     *jingleMute      `xml:"urn:xmpp:jingle:apps:rtp:info:1 mute,omitempty"`
	Unmute   *jingleMute      `xml:"urn:xmpp:jingle:apps:rtp:info:1 unmute,omitempty"`
}

type jingleContent struct {
	Name        string               `xml:"name,attr"`
	Creator     string               `xml:"creator,attr,omitempty"`
	Senders     string               `xml:"senders,attr,omitempty"`
	Description *jingleRTPDescription `xml:"urn:xmpp:jingle:apps:rtp:1 description,omitempty"`
	Transport   *jingleTransport      `xml:"urn:xmpp:jingle:transports:ice-udp:1 transport,omitempty"`
}

type jingleRTPDescription struct {
	Media         string               `xml:"media,attr"`
	PayloadTypes  []colibriPayloadType `xml:"payload-type,omitempty"`
	HdrExts       []colibriHdrExt      `xml:"urn:xmpp:jingle:apps:rtp:rtp-hdrext:0 rtp-hdrext,omitempty"`
	Sources       []jingleSource       `xml:"urn:xmpp:jingle:apps:rtp:ssma:0 source,omitempty"`
	SourceGroups  []jingleSourceGroup  `xml:"urn:xmpp:jingle:apps:grouping:0 ssrc-group,omitempty"`
	RTCPMux       *struct{}            `xml:"rtcp-mux,omitempty"`
}

type jingleSource struct {
	SSRC       string                  `xml:"ssrc,attr"`
	Parameters []jingleSourceParameter `xml:"parameter,omitempty"`
}

type jingleSourceParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr,omitempty"`
}

type jingleSourceGroup struct {
	Semantics string         `xml:"semantics,attr"`
	Sources   []jingleSSRCRef `xml:"source"`
}

type jingleSSRCRef struct {
	SSRC string `xml:"ssrc,attr"`
}

type jingleTransport struct {
	Pwd         string                `xml:"pwd,attr,omitempty"`
	UFrag       string                `xml:"ufrag,attr,omitempty"`
	Candidates  []jingleCandidate     `xml:"candidate,omitempty"`
	Fingerprint *jingleFingerprint    `xml:"urn:xmpp:jingle:apps:dtls:0 fingerprint,omitempty"`
}

type jingleFingerprint struct {
	Hash  string `xml:"hash,attr"`
	Setup string `xml:"setup,attr"`
	Value string `xml:",chardata"`
}

type jingleCandidate struct {
	Foundation string `xml:"foundation,attr"`
	Component  int    `xml:"component,attr"`
	Protocol   string `xml:"protocol,attr"`
	Priority   uint32 `xml:"priority,attr"`
	IP         string `xml:"ip,attr"`
	Port       int    `xml:"port,attr"`
	Type       string `xml:"type,attr"`
	Generation int    `xml:"generation,attr"`
}

type jingleGrouping struct {
	Semantics string              `xml:"semantics,attr"`
	Contents  []jingleGroupContent `xml:"content"`
}

type jingleGroupContent struct {
	Name string `xml:"name,attr"`
}

type jingleReason struct {
	Condition string `xml:",innerxml"`
	Text      string `xml:"text,omitempty"`
}

type jingleMute struct {
	Name   string                  `xml:"name,attr"`
	Streams []jingleMediaStreamRef `xml:"http://andyet.net/xmlns/mmuc mediastream,omitempty"`
}

type jingleMediaStreamRef struct {
	MSID string `xml:"msid,attr"`
}

// SessionInitiateOptions parameterizes a session-initiate sent to a newly
// joined participant, advertising the bridge's allocated channels.
type SessionInitiateOptions struct {
	SID        string
	Initiator  string
	UseBundle  bool
	UseRTX     bool
	Codecs     CodecConfig
	Audio      ChannelInfo
	Video      ChannelInfo
	Data       *DataChannelInfo
}

// BuildSessionInitiate builds the initial offer describing the bridge's
// audio, video, and (if present) data channels for one endpoint.
func BuildSessionInitiate(opts SessionInitiateOptions) any {
	iq := jingleIQ{
		Action:    string(ActionSessionInitiate),
		SID:       opts.SID,
		Initiator: opts.Initiator,
	}

	audio := jingleContent{
		Name:    "audio",
		Creator: "initiator",
		Senders: "both",
		Description: &jingleRTPDescription{
			Media:        "audio",
			PayloadTypes: payloadTypesToWire(opts.Codecs.Audio),
		},
		Transport: transportFromICE(opts.Audio.Transport),
	}
	video := jingleContent{
		Name:    "video",
		Creator: "initiator",
		Senders: "both",
		Description: &jingleRTPDescription{
			Media:        "video",
			PayloadTypes: payloadTypesToWire(opts.Codecs.Video),
		},
		Transport: transportFromICE(opts.Video.Transport),
	}

	iq.Contents = append(iq.Contents, audio, video)

	if opts.Data != nil {
		iq.Contents = append(iq.Contents, jingleContent{
			Name:    "data",
			Creator: "initiator",
		})
	}

	if opts.UseBundle {
		group := &jingleGrouping{Semantics: "BUNDLE"}
		for _, c := range iq.Contents {
			group.Contents = append(group.Contents, jingleGroupContent{Name: c.Name})
		}
		iq.Grouping = group
	}

	return &iq
}

func transportFromICE(t ICETransport) *jingleTransport {
	wire := &jingleTransport{Pwd: t.Pwd, UFrag: t.UFrag}
	if t.Fingerprint != "" {
		wire.Fingerprint = &jingleFingerprint{Hash: t.HashAlgo, Setup: "actpass", Value: t.Fingerprint}
	}
	for _, c := range t.Candidates {
		wire.Candidates = append(wire.Candidates, jingleCandidate{
			Foundation: c.Foundation,
			Component:  c.Component,
			Protocol:   c.Protocol,
			Priority:   c.Priority,
			IP:         c.IP,
			Port:       c.Port,
			Type:       c.Type,
			Generation: c.Generation,
		})
	}
	return wire
}

// BuildSourceAdd builds a source-add notifying session members that the
// given endpoint (identified implicitly by the sources' msid) has added
// these sources.
func BuildSourceAdd(sid string, contentName string, sources []Source, groups []SourceGroup) any {
	return buildSourceMutation(ActionSourceAdd, sid, contentName, sources, groups)
}

// BuildSourceRemove builds a source-remove for sources an endpoint dropped.
func BuildSourceRemove(sid string, contentName string, sources []Source, groups []SourceGroup) any {
	return buildSourceMutation(ActionSourceRemove, sid, contentName, sources, groups)
}

func buildSourceMutation(action JingleAction, sid, contentName string, sources []Source, groups []SourceGroup) any {
	desc := &jingleRTPDescription{Media: contentName}
	for _, s := range sources {
		wire := jingleSource{SSRC: fmt.Sprintf("%d", s.SSRC)}
		if s.MSID != "" {
			wire.Parameters = append(wire.Parameters, jingleSourceParameter{Name: "msid", Value: s.MSID})
		}
		for name, value := range s.Parameters {
			wire.Parameters = append(wire.Parameters, jingleSourceParameter{Name: name, Value: value})
		}
		desc.Sources = append(desc.Sources, wire)
	}
	for _, g := range groups {
		wire := jingleSourceGroup{Semantics: g.Semantics}
		for _, ssrc := range g.SSRCs {
			wire.Sources = append(wire.Sources, jingleSSRCRef{SSRC: fmt.Sprintf("%d", ssrc)})
		}
		desc.SourceGroups = append(desc.SourceGroups, wire)
	}

	return &jingleIQ{
		Action: string(action),
		SID:    sid,
		Contents: []jingleContent{
			{Name: contentName, Description: desc},
		},
	}
}

// BuildSessionTerminate builds a session-terminate with the given reason.
func BuildSessionTerminate(sid string, reason TerminateReason) any {
	return &jingleIQ{
		Action: string(ActionSessionTerminate),
		SID:    sid,
		Reason: &jingleReason{Condition: fmt.Sprintf("<%s/>", reason)},
	}
}

// BuildMuteInfo builds a session-info mute/unmute notification for a
// content name (audio or video), restricted to msids if given.
func BuildMuteInfo(sid, contentName string, muted bool, msids []string) any {
	iq := &jingleIQ{Action: string(ActionSessionInfo), SID: sid}
	m := &jingleMute{Name: contentName}
	for _, id := range msids {
		m.Streams = append(m.Streams, jingleMediaStreamRef{MSID: id})
	}
	if muted {
		iq.Mute = m
	} else {
		iq.Unmute = m
	}
	return iq
}

// SessionInfoMute is the result of parsing an inbound session-info
// mute/unmute notification.
type SessionInfoMute struct {
	Medium string // content name, e.g. "audio" or "video"
	Muted  bool
	MSIDs  []string // empty means every known msid is affected
}

// ParseSessionInfo extracts a mute/unmute directive from an inbound
// session-info body. It returns a nil result (no error) for session-info
// payloads that carry neither, e.g. other ringing/active informationals
// this focus does not act on.
func ParseSessionInfo(body []byte) (*SessionInfoMute, error) {
	var iq jingleIQ
	if err := xml.Unmarshal(body, &iq); err != nil {
		return nil, fmt.Errorf("stanza: parsing session-info body: %w", err)
	}

	m := iq.Mute
	muted := true
	if m == nil {
		m = iq.Unmute
		muted = false
	}
	if m == nil {
		return nil, nil
	}

	info := &SessionInfoMute{Medium: m.Name, Muted: muted}
	for _, s := range m.Streams {
		info.MSIDs = append(info.MSIDs, s.MSID)
	}
	return info, nil
}

// ParsedContent is the result of parsing one inbound jingle content
// element from a session-accept, source-add, or source-remove.
type ParsedContent struct {
	Name    string
	MSID    string // derived from the first source's msid parameter, if any
	Sources []Source
	Groups  []SourceGroup
}

// ParseContents extracts the per-content source lists and groupings carried
// in an inbound session-accept/source-add/source-remove IQ body. The
// caller passes the raw jingle element bytes; ParseContents does the
// unmarshal itself so callers never touch the unexported wire types.
func ParseContents(body []byte) ([]ParsedContent, error) {
	var iq jingleIQ
	if err := xml.Unmarshal(body, &iq); err != nil {
		return nil, fmt.Errorf("stanza: parsing jingle body: %w", err)
	}

	out := make([]ParsedContent, 0, len(iq.Contents))
	for _, c := range iq.Contents {
		if c.Description == nil {
			out = append(out, ParsedContent{Name: c.Name})
			continue
		}
		parsed := ParsedContent{Name: c.Name}
		for _, s := range c.Description.Sources {
			src := Source{Parameters: map[string]string{}}
			var ssrc uint64
			if _, err := fmt.Sscanf(s.SSRC, "%d", &ssrc); err != nil {
				return nil, fmt.Errorf("stanza: parsing ssrc %q: %w", s.SSRC, err)
			}
			src.SSRC = uint32(ssrc)
			for _, p := range s.Parameters {
				if p.Name == "msid" {
					src.MSID = p.Value
					if parsed.MSID == "" {
						parsed.MSID = p.Value
					}
				} else {
					src.Parameters[p.Name] = p.Value
				}
			}
			parsed.Sources = append(parsed.Sources, src)
		}
		for _, g := range c.Description.SourceGroups {
			group := SourceGroup{Semantics: g.Semantics}
			for _, ref := range g.Sources {
				var ssrc uint64
				if _, err := fmt.Sscanf(ref.SSRC, "%d", &ssrc); err != nil {
					return nil, fmt.Errorf("stanza: parsing group ssrc %q: %w", ref.SSRC, err)
				}
				group.SSRCs = append(group.SSRCs, uint32(ssrc))
			}
			parsed.Groups = append(parsed.Groups, group)
		}
		out = append(out, parsed)
	}
	return out, nil
}
