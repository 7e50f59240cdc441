package publisher

import (
	"context"

	"github.com/pkg/errors"

	"github.com/magicjudges/announcer/model"
)

var ErrNoSender = errors.New("no sender configured for destination kind")

// Sender pushes one announcement to one destination.
type Sender interface {
	Deliver(ctx context.Context, dest *model.Destination, a *model.Announcement) error
}

// SlackSender is implemented by the bot package webhook client.
type SlackSender interface {
	Deliver(ctx context.Context, dest *model.SlackDestination, a *model.Announcement) error
}

// DestinationRegistry dispatches to the sender of each destination kind.
type DestinationRegistry struct {
	Slack SlackSender
}

func (r *DestinationRegistry) Deliver(ctx context.Context, dest *model.Destination, a *model.Announcement) error {
	variant, err := dest.Variant()
	if err != nil {
		return err
	}
	switch v := variant.(type) {
	case *model.SlackDestination:
		if r.Slack == nil {
			return errors.Wrapf(ErrNoSender, "destination %s", dest.Id)
		}
		return r.Slack.Deliver(ctx, v, a)
	}
	return errors.Wrapf(model.ErrUnknownDestinationKind, "destination %s", dest.Id)
}
