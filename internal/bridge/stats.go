package bridge

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/otalk/mod-muc-focus/internal/bus"
	"github.com/otalk/mod-muc-focus/internal/metrics"
)

// BusService is the distributed pub/sub interface the Stats Ingester
// subscribes through (backed by go-redis/v9 in production,
// alicebob/miniredis/v2 in tests).
type BusService interface {
	Subscribe(ctx context.Context, roomID string, wg *sync.WaitGroup, handler func(bus.PubSubPayload))
}

// StatReport is one bridge's headline stat message: a publisher identity
// and a set of numeric key/value pairs, as parsed from a pub/sub "stat"
// event's children.
type StatReport struct {
	Bridge ID
	Values map[string]float64
}

// StatsIngester consumes pub/sub messages carrying bridge statistics and
// feeds the Bridge Selector. Subscription is deferred
// via time.AfterFunc so newly started bridges have a chance to begin
// publishing before the first stats are expected.
type StatsIngester struct {
	busChannel string
	svc        BusService
	selector   *Selector
}

// NewStatsIngester builds an ingester that subscribes on busChannel (the
// configured pub/sub node) once Start is called.
func NewStatsIngester(svc BusService, busChannel string, selector *Selector) *StatsIngester {
	return &StatsIngester{busChannel: busChannel, svc: svc, selector: selector}
}

// Start schedules the subscription to begin after delay, a short grace
// period that lets newly started bridges begin publishing first.
func (i *StatsIngester) Start(ctx context.Context, delay time.Duration, wg *sync.WaitGroup) {
	time.AfterFunc(delay, func() {
		i.svc.Subscribe(ctx, i.busChannel, wg, i.handle)
	})
}

func (i *StatsIngester) handle(msg bus.PubSubPayload) {
	if msg.Event != "stat" {
		return
	}

	var raw map[string]string
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		return
	}

	values := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue // non-numeric fields are discarded
		}
		values[k] = f
	}

	id := ID(msg.SenderID)
	st := Stats{
		UploadBitrate:    values["bitrate_upload"],
		DownloadBitrate:  values["bitrate_download"],
		ParticipantCount: int(values["participants"]),
		ObservedAt:       time.Now(),
	}
	i.selector.UpdateStats(id, st)
	metrics.StatsIngested.WithLabelValues(string(id)).Inc()
}
