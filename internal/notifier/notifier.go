package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/angebot/offers/internal/kafka"
	"github.com/angebot/offers/internal/offers"
	"github.com/angebot/offers/internal/redisx"
)

// Notifier is the narrow interface the out-of-scope email/PDF subsystem
// plugs into. The default implementation only logs.
type Notifier interface {
	NotifyStatusChanged(ctx context.Context, p offers.OfferStatusChangedPayload) error
}

// LogNotifier is the null-object fallback used when no delivery channel is
// configured.
type LogNotifier struct{ Log *zap.Logger }

func (n LogNotifier) NotifyStatusChanged(_ context.Context, p offers.OfferStatusChangedPayload) error {
	n.Log.Info("offer status changed",
		zap.String("offer_number", p.OfferNumber),
		zap.String("previous_status", string(p.PreviousStatus)),
		zap.String("new_status", string(p.NewStatus)),
		zap.String("customer_email", p.CustomerEmail))
	return nil
}

// Service consumes offer.status_changed events, dedups them via Redis and
// hands them to the Notifier. Wired as a kafka consumer handler.
type Service struct {
	Redis       *redis.Client
	Notifier    Notifier
	ServiceName string
	Log         *zap.Logger
}

func (s *Service) HandleStatusChanged(ctx context.Context, m kafkago.Message) error {
	var env offers.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != offers.EventOfferStatusChanged {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	fresh, err := redisx.SetNX(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		s.Log.Warn("dedup check failed, processing anyway", zap.String("event_id", env.EventID), zap.Error(err))
	} else if !fresh {
		return nil
	}

	p, err := kafkax.UnwrapPayload[offers.OfferStatusChangedPayload](env.Payload)
	if err != nil {
		return err
	}
	return s.Notifier.NotifyStatusChanged(ctx, p)
}
