package main

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	"mellium.im/xmpp/component"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/mux"
	mstanza "mellium.im/xmpp/stanza"

	"github.com/otalk/mod-muc-focus/internal/bridge"
	"github.com/otalk/mod-muc-focus/internal/config"
	"github.com/otalk/mod-muc-focus/internal/focus"
	"github.com/otalk/mod-muc-focus/internal/presence"
	"github.com/otalk/mod-muc-focus/internal/stanza"
	"github.com/otalk/mod-muc-focus/internal/xmppns"
)

// componentSession owns the live XEP-0114 component connection: it is both
// the bridge.StanzaSender that carries COLIBRI over the wire and the
// focus.Transport that delivers Jingle, acks, status, and presence to MUC
// occupants. A real deployment dials out to the XMPP server's component
// port and authenticates with a shared secret, rather than listening for
// inbound connections.
type componentSession struct {
	cfg    *config.Config
	conn   net.Conn
	sess   *xmpp.Session
	domain jid.JID
	log    *zap.Logger

	mu           sync.Mutex
	lastPresence map[string][]byte
}

func newXMPPSender(ctx context.Context, cfg *config.Config, log *zap.Logger) (*componentSession, *bridge.Client, error) {
	domain, err := jid.Parse(cfg.ComponentDomain)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing FOCUS_COMPONENT_DOMAIN: %w", err)
	}

	conn, err := net.Dial("tcp", cfg.ComponentAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing component port %s: %w", cfg.ComponentAddr, err)
	}

	// The component negotiator performs the XEP-0114 handshake: it sends
	// the opening stream header, reads the server's stream ID, and replies
	// with a SHA-1 digest of streamID+secret. This is the one integration
	// point whose exact call shape is not confirmed against a pinned
	// mellium.im/xmpp/component source in the reference set; see
	// DESIGN.md for the reasoning behind this call shape.
	negotiator := component.NewNegotiator(cfg.ComponentDomain, cfg.ComponentSecret)

	sess, err := xmpp.NegotiateSession(ctx, domain, domain, conn, negotiator)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("negotiating component session: %w", err)
	}

	x := &componentSession{
		cfg:          cfg,
		conn:         conn,
		sess:         sess,
		domain:       domain,
		log:          log,
		lastPresence: make(map[string][]byte),
	}

	client := bridge.NewClient(bridge.ID(cfg.MediaBridge), x)
	return x, client, nil
}

func (x *componentSession) close() {
	if x.sess != nil {
		x.sess.Close()
	}
}

// SendIQ satisfies bridge.StanzaSender: it carries one COLIBRI request body
// to a bridge JID, stamping the request's "from" with a reversible
// room-token resource (internal/xmppns.RoomToken) so the bridge's reply
// addresses a JID this service can route and decode back to room, and
// returns the raw reply bytes.
func (x *componentSession) SendIQ(ctx context.Context, room, to string, payload any) ([]byte, error) {
	toJID, err := jid.Parse(to)
	if err != nil {
		return nil, fmt.Errorf("parsing bridge jid %q: %w", to, err)
	}
	fromJID, err := x.roomFromJID(room)
	if err != nil {
		return nil, err
	}

	rc, err := x.sess.EncodeIQElement(ctx, payload, mstanza.IQ{From: fromJID, To: toJID, Type: mstanza.SetIQ})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return tokensToBytes(rc)
}

// roomFromJID builds this service's reply-to address for a COLIBRI
// request made on behalf of room: its own bare JID with room's reversible
// token as resource.
func (x *componentSession) roomFromJID(room string) (jid.JID, error) {
	roomJID, err := jid.Parse(room)
	if err != nil {
		return jid.JID{}, fmt.Errorf("parsing room jid %q: %w", room, err)
	}
	return x.domain.WithResource(xmppns.RoomToken(roomJID))
}

// transport returns the focus.Transport view of this session.
func (x *componentSession) transport() focus.Transport {
	return (*focusTransport)(x)
}

// focusTransport is componentSession under the focus.Transport interface;
// a distinct named type keeps the StanzaSender and Transport method sets
// from colliding on the same receiver.
type focusTransport componentSession

func (t *focusTransport) session() *componentSession { return (*componentSession)(t) }

func (t *focusTransport) occupantJID(room, nick string) (jid.JID, error) {
	roomJID, err := jid.Parse(room)
	if err != nil {
		return jid.JID{}, fmt.Errorf("parsing room jid %q: %w", room, err)
	}
	return roomJID.WithResource(nick)
}

func (t *focusTransport) SendJingle(ctx context.Context, room, to string, payload any) error {
	occ, err := t.occupantJID(room, to)
	if err != nil {
		return err
	}
	x := t.session()
	rc, err := x.sess.EncodeIQElement(ctx, payload, mstanza.IQ{To: occ, Type: mstanza.SetIQ})
	if err != nil {
		return err
	}
	if rc != nil {
		rc.Close()
	}
	return nil
}

func (t *focusTransport) Ack(ctx context.Context, room, to, iqID string) error {
	occ, err := t.occupantJID(room, to)
	if err != nil {
		return err
	}
	x := t.session()
	start := xml.StartElement{
		Name: xml.Name{Local: "iq"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "id"}, Value: iqID},
			{Name: xml.Name{Local: "to"}, Value: occ.String()},
			{Name: xml.Name{Local: "type"}, Value: string(mstanza.ResultIQ)},
		},
	}
	return x.sess.Send(ctx, xmlstream.Wrap(nil, start))
}

func (t *focusTransport) SendError(ctx context.Context, room, to, iqID, condition string) error {
	occ, err := t.occupantJID(room, to)
	if err != nil {
		return err
	}
	x := t.session()

	iq := mstanza.IQ{ID: iqID, To: occ, Type: mstanza.ErrorIQ}
	r := iq.Wrap(mstanza.Error{
		Type:      mstanza.Modify,
		Condition: mstanza.Condition(condition),
	}.TokenReader())
	return x.sess.Send(ctx, r)
}

// conferenceStatus is the groupchat-status extension this focus stamps
// onto a message broadcast when the room crosses the relay threshold, in
// the same mmuc namespace already used for per-occupant media annotation.
type conferenceStatus struct {
	XMLName xml.Name `xml:"http://andyet.net/xmlns/mmuc conference"`
	Mode    string   `xml:"mode,attr"`
}

func (t *focusTransport) BroadcastStatus(ctx context.Context, room string, mode focus.StatusMode) error {
	roomJID, err := jid.Parse(room)
	if err != nil {
		return err
	}
	return t.sendStatus(ctx, roomJID, mode)
}

func (t *focusTransport) UnicastStatus(ctx context.Context, room, to string, mode focus.StatusMode) error {
	occ, err := t.occupantJID(room, to)
	if err != nil {
		return err
	}
	return t.sendStatus(ctx, occ, mode)
}

func (t *focusTransport) sendStatus(ctx context.Context, to jid.JID, mode focus.StatusMode) error {
	x := t.session()
	payload := conferenceStatus{Mode: string(mode)}
	return x.sess.EncodeElement(ctx, payload, xml.StartElement{
		Name: xml.Name{Local: "message"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "to"}, Value: to.String()},
			{Name: xml.Name{Local: "type"}, Value: "groupchat"},
		},
	})
}

func (t *focusTransport) RepublishPresence(ctx context.Context, room, nick string, msids map[string]focus.MSIDState) error {
	x := t.session()
	key := room + "\x00" + nick

	x.mu.Lock()
	last, ok := x.lastPresence[key]
	x.mu.Unlock()
	if !ok {
		return nil
	}

	restamped, err := presence.Restamp(last, msids)
	if err != nil {
		return fmt.Errorf("restamping presence for %s/%s: %w", room, nick, err)
	}

	x.mu.Lock()
	x.lastPresence[key] = restamped
	x.mu.Unlock()

	dec := xml.NewDecoder(bytes.NewReader(restamped))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return fmt.Errorf("republish presence: expected start element")
	}
	return x.sess.SendElement(ctx, dec, start)
}

// tokensToBytes re-serializes a token stream to bytes, for handing reply
// bodies to the internal/stanza parsers, which operate on raw XML.
func tokensToBytes(r xml.TokenReader) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if _, err := xmlstream.Copy(enc, r); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// attach registers MUC presence and Jingle IQ handlers and begins serving
// the component session. It runs Serve on a background goroutine and
// returns once the mux is registered.
func (x *componentSession) attach(ctx context.Context, controller *focus.Controller, log *zap.Logger) error {
	h := &stanzaHandler{ctx: ctx, x: x, controller: controller, log: log}

	m := mux.New(
		mux.Presence(mstanza.AvailablePresence, xml.Name{Space: "http://jabber.org/protocol/muc#user", Local: "x"}, h),
		mux.Presence(mstanza.UnavailablePresence, xml.Name{Space: "http://jabber.org/protocol/muc#user", Local: "x"}, h),
		mux.IQ(mstanza.SetIQ, xml.Name{Space: xmppns.Jingle, Local: "jingle"}, h),
	)

	go func() {
		if err := x.sess.Serve(m); err != nil {
			log.Error("component session serve loop exited", zap.Error(err))
		}
	}()
	return nil
}

// stanzaHandler dispatches inbound presence and Jingle IQs into the
// Controller.
type stanzaHandler struct {
	ctx        context.Context
	x          *componentSession
	controller *focus.Controller
	log        *zap.Logger
}

type mucUserPresence struct {
	mstanza.Presence
	X struct {
		XMLName xml.Name
		Item    struct {
			Affiliation string `xml:"affiliation,attr"`
			Role        string `xml:"role,attr"`
			Jid         string `xml:"jid,attr"`
		} `xml:"item"`
	} `xml:"http://jabber.org/protocol/muc#user x"`
	Conf struct {
		XMLName xml.Name
		Bridged string `xml:"bridged,attr"`
	} `xml:"http://andyet.net/xmlns/mmuc conf"`
}

// HandlePresence satisfies mux.PresenceHandler. A capable joiner is one
// whose presence carries a conf element in the mmuc namespace with
// bridged equal to 1 or true.
func (h *stanzaHandler) HandlePresence(p mstanza.Presence, r xmlstream.TokenReadEncoder) error {
	raw, err := tokensToBytes(xmlstream.Wrap(xmlstream.Inner(r), xml.StartElement{
		Name: xml.Name{Local: "presence"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "from"}, Value: p.From.String()}},
	}))
	if err != nil {
		return err
	}

	room := p.From.Bare().String()
	nick := p.From.Resourcepart()
	key := room + "\x00" + nick

	if p.Type == mstanza.UnavailablePresence {
		h.x.mu.Lock()
		delete(h.x.lastPresence, key)
		h.x.mu.Unlock()
		return h.controller.Left(h.ctx, room, nick)
	}

	var decoded mucUserPresence
	if err := xml.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decoding muc presence: %w", err)
	}
	capable := decoded.Conf.XMLName.Local != "" && (decoded.Conf.Bridged == "1" || decoded.Conf.Bridged == "true")
	realJID := decoded.X.Item.Jid
	if realJID == "" {
		realJID = p.From.String()
	}

	h.x.mu.Lock()
	_, seen := h.x.lastPresence[key]
	h.x.lastPresence[key] = raw
	h.x.mu.Unlock()

	if seen {
		return nil
	}

	if err := h.controller.PreJoin(h.ctx, room, nick, realJID, capable); err != nil {
		return nil // rejection already signaled to the joiner
	}
	h.controller.MaterializeParticipant(room, nick, realJID, capable)
	return h.controller.Joined(h.ctx, room, nick)
}

// HandleIQ satisfies mux.IQHandler for Jingle payloads.
func (h *stanzaHandler) HandleIQ(iq mstanza.IQ, r xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	body, err := tokensToBytes(xmlstream.Wrap(xmlstream.Inner(r), *start))
	if err != nil {
		return err
	}

	var envelope struct {
		Action string `xml:"action,attr"`
	}
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decoding jingle action: %w", err)
	}

	room := iq.From.Bare().String()
	nick := iq.From.Resourcepart()
	return h.controller.Jingle(h.ctx, room, nick, stanza.JingleAction(envelope.Action), iq.ID, body)
}
