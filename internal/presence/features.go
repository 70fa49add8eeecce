// Package presence builds the capability and media-metadata surface this
// focus agent exposes to MUC occupants: service-discovery features and
// per-occupant mediastream presence annotations. It never touches the
// focus-to-bridge COLIBRI surface.
package presence

import (
	"mellium.im/xmpp/disco"

	"github.com/otalk/mod-muc-focus/internal/xmppns"
)

// Identity is the disco#info identity this agent advertises for its MUC
// occupant JID: a conference/video-capable service.
var Identity = disco.Identity{Category: "conference", Type: "video", Name: "mod-muc-focus"}

// Features lists the fixed capability tokens advertised in this room's
// service-discovery info. COLIBRI is deliberately absent: it is a
// focus-to-bridge concern, never advertised to clients.
var Features = []disco.Feature{
	{Var: xmppns.Jingle},
	{Var: xmppns.JingleICEUDP},
	{Var: xmppns.JingleRTP},
	{Var: xmppns.JingleDTLS},
	{Var: xmppns.MMUC},
}

// Info builds the disco#info payload served in reply to a disco query
// against this room's focus occupant.
func Info() disco.Info {
	return disco.Info{
		Identity: []disco.Identity{Identity},
		Features: Features,
	}
}

// Supports reports whether ns is among the advertised feature set.
func Supports(ns string) bool {
	for _, f := range Features {
		if f.Var == ns {
			return true
		}
	}
	return false
}
