package stanza

import (
	"encoding/xml"
	"fmt"
)

type colibriConferenceReply struct {
	XMLName  xml.Name                `xml:"conference"`
	ID       string                  `xml:"id,attr"`
	Contents []colibriContentReply   `xml:"content"`
}

type colibriContentReply struct {
	Name            string                       `xml:"name,attr"`
	Channels        []colibriChannelReply        `xml:"channel"`
	SCTPConnections []colibriSCTPConnectionReply `xml:"sctpconnection"`
}

type colibriChannelReply struct {
	ID            string                `xml:"id,attr"`
	Endpoint      string                `xml:"endpoint,attr"`
	RTPLevelRelay string                `xml:"rtp-level-relay-type,attr"`
	Transport     *colibriTransportReply `xml:"urn:xmpp:jingle:transports:ice-udp:1 transport"`
}

type colibriSCTPConnectionReply struct {
	ID       string `xml:"id,attr"`
	Endpoint string `xml:"endpoint,attr"`
	Port     int    `xml:"port,attr"`
}

type colibriTransportReply struct {
	Pwd         string                     `xml:"pwd,attr"`
	UFrag       string                     `xml:"ufrag,attr"`
	Candidates  []jingleCandidate          `xml:"candidate"`
	Fingerprint *colibriFingerprintReply   `xml:"urn:xmpp:jingle:apps:dtls:0 fingerprint"`
}

type colibriFingerprintReply struct {
	Hash  string `xml:"hash,attr"`
	Value string `xml:",chardata"`
}

// ParseColibriResult extracts the conference id and the per-endpoint
// audio/video/data channel assignments from a COLIBRI conference-create
// or conference-update result, as delivered by the bridge in reply to a
// request issued through the Correlation Table.
func ParseColibriResult(body []byte) (conferenceID string, channels map[string]EndpointChannels, err error) {
	var conf colibriConferenceReply
	if err := xml.Unmarshal(body, &conf); err != nil {
		return "", nil, fmt.Errorf("stanza: parsing colibri result: %w", err)
	}

	out := make(map[string]EndpointChannels)
	get := func(endpoint string) EndpointChannels {
		ec, ok := out[endpoint]
		if !ok {
			ec = EndpointChannels{Endpoint: endpoint}
		}
		return ec
	}

	for _, content := range conf.Contents {
		switch content.Name {
		case "audio":
			for _, ch := range content.Channels {
				ec := get(ch.Endpoint)
				ec.Audio = channelInfoFromReply(ch)
				out[ch.Endpoint] = ec
			}
		case "video":
			for _, ch := range content.Channels {
				ec := get(ch.Endpoint)
				ec.Video = channelInfoFromReply(ch)
				out[ch.Endpoint] = ec
			}
		case "data":
			for _, sc := range content.SCTPConnections {
				ec := get(sc.Endpoint)
				ec.Data = &DataChannelInfo{ID: sc.ID, Port: sc.Port}
				out[sc.Endpoint] = ec
			}
		}
	}

	return conf.ID, out, nil
}

func channelInfoFromReply(ch colibriChannelReply) ChannelInfo {
	info := ChannelInfo{ID: ch.ID, RTPLevel: ch.RTPLevelRelay}
	if ch.Transport == nil {
		return info
	}
	info.Transport = ICETransport{
		Pwd:   ch.Transport.Pwd,
		UFrag: ch.Transport.UFrag,
	}
	for _, c := range ch.Transport.Candidates {
		info.Transport.Candidates = append(info.Transport.Candidates, ICECandidate{
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
	if ch.Transport.Fingerprint != nil {
		info.Transport.Fingerprint = ch.Transport.Fingerprint.Value
		info.Transport.HashAlgo = ch.Transport.Fingerprint.Hash
	}
	return info
}
