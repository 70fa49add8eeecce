package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/otalk/mod-muc-focus/internal/metrics"
	"github.com/sony/gobreaker"
)

// ErrBridgeUnavailable is returned when a bridge's circuit breaker is open.
var ErrBridgeUnavailable = errors.New("bridge: circuit breaker open")

// StanzaSender is the minimal XMPP transport a Client needs: send an IQ of
// type set to a JID and get back the raw body of the matching reply (or
// an error if the bridge replied with an IQ error or the send itself
// failed). room is the bare room JID the request is made on behalf of;
// implementations stamp it into the request's "from" as a reversible
// token (see internal/xmppns.RoomToken) so the bridge addresses its reply
// to a JID this service can route and decode back to a room. Concrete
// implementations wrap an XMPP session (see cmd/focus); keeping this as a
// narrow interface lets Client, and the circuit breaker wrapped around
// it, be tested without a live XMPP connection.
type StanzaSender interface {
	SendIQ(ctx context.Context, room, to string, payload any) ([]byte, error)
}

// Client sends COLIBRI requests to one bridge, tripping a dedicated
// circuit breaker when that bridge stops responding. Adapted from the
// teacher's pkg/sfu.SFUClient, which wraps gRPC calls to the Rust SFU the
// same way — one breaker per remote peer, reusing the same
// metrics.CircuitBreakerState/CircuitBreakerFailures gauges.
type Client struct {
	id     ID
	sender StanzaSender
	cb     *gobreaker.CircuitBreaker
}

// NewClient builds a Client for the given bridge id, using sender to carry
// IQs over the wire.
func NewClient(id ID, sender StanzaSender) *Client {
	name := string(id)
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}
	return &Client{id: id, sender: sender, cb: gobreaker.NewCircuitBreaker(st)}
}

// Send delivers payload to the bridge's JID on behalf of room and returns
// the bridge's reply body, or ErrBridgeUnavailable if the breaker is open.
func (c *Client) Send(ctx context.Context, room, to string, payload any) ([]byte, error) {
	resp, err := c.cb.Execute(func() (interface{}, error) {
		return c.sender.SendIQ(ctx, room, to, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			metrics.CircuitBreakerFailures.WithLabelValues(string(c.id)).Inc()
			return nil, ErrBridgeUnavailable
		}
		return nil, err
	}
	return resp.([]byte), nil
}

// Healthy reports whether this bridge's breaker is currently closed.
func (c *Client) Healthy() bool {
	return c.cb.State() == gobreaker.StateClosed
}
