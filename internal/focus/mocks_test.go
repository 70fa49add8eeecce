package focus

import (
	"context"
	"sync"
)

// fakeTransport records every client-facing send the Controller makes,
// so tests can assert on fan-out without a live XMPP session.
type fakeTransport struct {
	mu sync.Mutex

	Jingle     []jingleSend
	Acks       []ackSend
	Errors     []errSend
	Broadcasts []StatusMode
	Unicasts   []unicastSend
	Presence   []presenceSend
}

type jingleSend struct {
	Room, To string
	Payload  any
}

type ackSend struct {
	Room, To, IQID string
}

type errSend struct {
	Room, To, IQID, Condition string
}

type unicastSend struct {
	Room, To string
	Mode     StatusMode
}

type presenceSend struct {
	Room, Nick string
	MSIDs      map[string]MSIDState
}

func (f *fakeTransport) SendJingle(_ context.Context, room, to string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Jingle = append(f.Jingle, jingleSend{Room: room, To: to, Payload: payload})
	return nil
}

func (f *fakeTransport) Ack(_ context.Context, room, to, iqID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Acks = append(f.Acks, ackSend{Room: room, To: to, IQID: iqID})
	return nil
}

func (f *fakeTransport) SendError(_ context.Context, room, to, iqID, condition string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors = append(f.Errors, errSend{Room: room, To: to, IQID: iqID, Condition: condition})
	return nil
}

func (f *fakeTransport) BroadcastStatus(_ context.Context, _ string, mode StatusMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Broadcasts = append(f.Broadcasts, mode)
	return nil
}

func (f *fakeTransport) UnicastStatus(_ context.Context, room, to string, mode StatusMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Unicasts = append(f.Unicasts, unicastSend{Room: room, To: to, Mode: mode})
	return nil
}

func (f *fakeTransport) RepublishPresence(_ context.Context, room, nick string, msids map[string]MSIDState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(map[string]MSIDState, len(msids))
	for k, v := range msids {
		cp[k] = v
	}
	f.Presence = append(f.Presence, presenceSend{Room: room, Nick: nick, MSIDs: cp})
	return nil
}

func (f *fakeTransport) jingleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Jingle)
}

// fakeBridgeSender answers every COLIBRI send synchronously from a
// caller-supplied function, recording the requests it saw.
type fakeBridgeSender struct {
	mu   sync.Mutex
	reqs []bridgeReq
	fn   func(to string, payload any) ([]byte, error)
}

type bridgeReq struct {
	Room    string
	To      string
	Payload any
}

func (f *fakeBridgeSender) Send(_ context.Context, room, to string, payload any) ([]byte, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, bridgeReq{Room: room, To: to, Payload: payload})
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return []byte(`<conference xmlns="http://jitsi.org/protocol/colibri" id="conf1"/>`), nil
	}
	return fn(to, payload)
}

func (f *fakeBridgeSender) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}
