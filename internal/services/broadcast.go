package services

import (
	"context"
	"encoding/json"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
	log "github.com/sirupsen/logrus"

	"njoy-gate/models"
)

// PubNubBroadcaster fans scan results out to the other gates of an event.
type PubNubBroadcaster struct {
	pn      *pubnub.PubNub
	channel string
}

func newPubNubConfig(publishKey, subscribeKey, userID string) *pubnub.Config {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	return cfg
}

func NewPubNubBroadcaster(publishKey, subscribeKey, userID, channel string) *PubNubBroadcaster {
	return &PubNubBroadcaster{
		pn:      pubnub.NewPubNub(newPubNubConfig(publishKey, subscribeKey, userID)),
		channel: channel,
	}
}

// Publish sends e to the gate channel. A done ctx fails before the request
// reaches the publish worker pool.
func (b *PubNubBroadcaster) Publish(ctx context.Context, e models.ScanLogEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("PubNubBroadcaster.Publish: %w", err)
	}
	msg, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("PubNubBroadcaster.Publish: json.Marshal: %w", err)
	}
	_, st, err := b.pn.PublishWithContext(ctx).
		Channel(b.channel).
		Message(string(msg)).
		Execute()
	if err != nil {
		return fmt.Errorf("PubNubBroadcaster.Publish: status %d: %w", st.StatusCode, err)
	}
	return nil
}

// Write lets the broadcaster sit behind a ScanLog like any other sink.
func (b *PubNubBroadcaster) Write(ctx context.Context, e models.ScanLogEntry) error {
	return b.Publish(ctx, e)
}

// GateFeed receives the scan results published by every gate on a channel.
type GateFeed struct {
	pn      *pubnub.PubNub
	lis     *pubnub.Listener
	channel string
}

func NewGateFeed(subscribeKey, userID, channel string) *GateFeed {
	return &GateFeed{
		pn:      pubnub.NewPubNub(newPubNubConfig("", subscribeKey, userID)),
		lis:     pubnub.NewListener(),
		channel: channel,
	}
}

// Run subscribes and calls fn for every entry until ctx is done.
func (f *GateFeed) Run(ctx context.Context, fn func(models.ScanLogEntry)) error {
	f.pn.AddListener(f.lis)
	f.pn.Subscribe().Channels([]string{f.channel}).Execute()
	defer func() {
		f.pn.UnsubscribeAll()
		f.pn.RemoveListener(f.lis)
	}()

	for {
		select {
		case st := <-f.lis.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.WithField("channel", f.channel).Info("Connected to gate feed")
			case pubnub.PNReconnectedCategory:
				log.WithField("channel", f.channel).Info("Reconnected to gate feed")
			case pubnub.PNDisconnectedCategory:
				log.WithField("channel", f.channel).Warn("Disconnected from gate feed")
			case pubnub.PNAccessDeniedCategory:
				return fmt.Errorf("GateFeed.Run: access denied to %s", f.channel)
			}

		case msg := <-f.lis.Message:
			e, err := decodeFeedMessage(msg.Message)
			if err != nil {
				log.WithError(err).Debug("Skipping unreadable gate feed message")
				continue
			}
			fn(e)

		case <-ctx.Done():
			return nil
		}
	}
}

func decodeFeedMessage(m interface{}) (models.ScanLogEntry, error) {
	var e models.ScanLogEntry
	var raw []byte
	switch v := m.(type) {
	case string:
		raw = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return e, err
		}
		raw = b
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		return e, err
	}
	if e.Code == "" && e.Status == "" {
		return e, fmt.Errorf("gate feed: empty entry")
	}
	return e, nil
}
