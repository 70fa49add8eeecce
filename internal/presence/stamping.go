package presence

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"

	"github.com/otalk/mod-muc-focus/internal/focus"
	"github.com/otalk/mod-muc-focus/internal/xmppns"
)

// mediaStreamElem is the per-msid mute annotation carried as a direct
// child of an occupant's MUC presence.
type mediaStreamElem struct {
	XMLName xml.Name `xml:"http://andyet.net/xmlns/mmuc mediastream"`
	MSID    string   `xml:"msid,attr"`
	Audio   string   `xml:"audio,attr,omitempty"`
	Video   string   `xml:"video,attr,omitempty"`
}

// Restamp strips every existing mediastream child from presenceXML and, if
// the presence is not of type "unavailable", re-stamps one child per
// non-empty entry in msids. This is the pre-change hook run on every
// outgoing presence update: peers must always see media metadata
// consistent with the authoritative state, never a stale annotation left
// over from a previous mute toggle.
func Restamp(presenceXML []byte, msids map[string]focus.MSIDState) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(presenceXML))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	depth := 0
	rootType := ""
	rootSeen := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("presence: decoding outgoing presence: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 && !rootSeen {
				rootSeen = true
				for _, a := range t.Attr {
					if a.Name.Local == "type" {
						rootType = a.Value
					}
				}
			}
			if depth == 2 && t.Name.Space == xmppns.MMUC && t.Name.Local == "mediastream" {
				if err := skipSubtree(dec); err != nil {
					return nil, err
				}
				depth--
				continue
			}
			if err := enc.EncodeToken(t); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if depth == 1 && rootType != "unavailable" {
				if err := encodeMediaStreams(enc, msids); err != nil {
					return nil, err
				}
			}
			if err := enc.EncodeToken(t); err != nil {
				return nil, err
			}
			depth--
		default:
			if err := enc.EncodeToken(t); err != nil {
				return nil, err
			}
		}
	}

	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// skipSubtree consumes tokens up to and including the EndElement matching
// the StartElement already read by the caller.
func skipSubtree(dec *xml.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("presence: skipping mediastream element: %w", err)
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

func encodeMediaStreams(enc *xml.Encoder, msids map[string]focus.MSIDState) error {
	ids := make([]string, 0, len(msids))
	for id := range msids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		state := msids[id]
		if state.Audio == "" && state.Video == "" {
			continue
		}
		if err := enc.Encode(mediaStreamElem{MSID: id, Audio: state.Audio, Video: state.Video}); err != nil {
			return fmt.Errorf("presence: encoding mediastream for msid %q: %w", id, err)
		}
	}
	return nil
}
