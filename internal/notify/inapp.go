package notify

import (
	"context"

	"github.com/google/uuid"

	"dosewatch/internal/clock"
	"dosewatch/internal/dose"
	"dosewatch/internal/storage"
)

// InApp writes a Notification record through the store. Always
// configured; this is the channel the owner's notification feed reads.
type InApp struct {
	store storage.Store
	clk   clock.Clock
}

func NewInApp(store storage.Store, clk clock.Clock) *InApp {
	return &InApp{store: store, clk: clk}
}

func (c *InApp) Name() string { return "inapp" }

func (c *InApp) Configured(storage.Owner) bool { return true }

func (c *InApp) Send(ctx context.Context, o storage.Owner, kind dose.Kind, msg string) error {
	return c.store.CreateNotification(ctx, storage.Notification{
		ID:        uuid.NewString(),
		OwnerID:   o.ID,
		Message:   msg,
		Kind:      kind,
		CreatedAt: c.clk.Now(),
	})
}
