package router

import (
	"context"

	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
)

// Sender is the part of the transport adapter used for delivery.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Delivery sends fired reminders back to the chat (and topic) they came
// from. It implements reminder.Deliverer.
type Delivery struct {
	sender Sender
}

func NewDelivery(sender Sender) *Delivery { return &Delivery{sender: sender} }

func (d *Delivery) Deliver(ctx context.Context, r storage.Reminder) error {
	_, err := d.sender.SendText(ctx, kit.ChatTarget{ChatID: r.Owner, ThreadID: r.ThreadID}, deliveryText(r.ID, r.Text), &kit.SendOptions{DisablePreview: true})
	return err
}
