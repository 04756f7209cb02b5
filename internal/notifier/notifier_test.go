package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/angebot/offers/internal/offers"
)

type recordingNotifier struct {
	got []offers.OfferStatusChangedPayload
	err error
}

func (n *recordingNotifier) NotifyStatusChanged(_ context.Context, p offers.OfferStatusChangedPayload) error {
	n.got = append(n.got, p)
	return n.err
}

func setup(t *testing.T) (*Service, *recordingNotifier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	rec := &recordingNotifier{}
	svc := &Service{Redis: client, Notifier: rec, ServiceName: "offer-notifier", Log: zap.NewNop()}
	return svc, rec, mr
}

func statusChangedMessage(t *testing.T, eventID string) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(offers.OfferStatusChangedPayload{
		OfferID:        "off_1",
		OfferNumber:    "ANG-00042",
		PreviousStatus: offers.StatusDraft,
		NewStatus:      offers.StatusActive,
		CustomerEmail:  "erika@example.com",
	})
	require.NoError(t, err)
	env, err := json.Marshal(offers.Envelope{
		EventID:      eventID,
		EventType:    offers.EventOfferStatusChanged,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "offer-api",
		Payload:      payload,
	})
	require.NoError(t, err)
	return kafkago.Message{Value: env}
}

func TestHandleStatusChanged_Delivers(t *testing.T) {
	svc, rec, _ := setup(t)

	err := svc.HandleStatusChanged(context.Background(), statusChangedMessage(t, "ev_1"))
	require.NoError(t, err)

	require.Len(t, rec.got, 1)
	assert.Equal(t, "ANG-00042", rec.got[0].OfferNumber)
	assert.Equal(t, offers.StatusActive, rec.got[0].NewStatus)
}

func TestHandleStatusChanged_DeduplicatesByEventID(t *testing.T) {
	svc, rec, _ := setup(t)
	msg := statusChangedMessage(t, "ev_dup")

	require.NoError(t, svc.HandleStatusChanged(context.Background(), msg))
	require.NoError(t, svc.HandleStatusChanged(context.Background(), msg))

	assert.Len(t, rec.got, 1, "redelivery of the same event id must be dropped")
}

func TestHandleStatusChanged_IgnoresOtherEventTypes(t *testing.T) {
	svc, rec, _ := setup(t)
	env, err := json.Marshal(offers.Envelope{
		EventID:   "ev_2",
		EventType: offers.EventOfferCreated,
		Payload:   json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	require.NoError(t, svc.HandleStatusChanged(context.Background(), kafkago.Message{Value: env}))
	assert.Empty(t, rec.got)
}

func TestHandleStatusChanged_ProcessesWhenRedisDown(t *testing.T) {
	svc, rec, mr := setup(t)
	mr.Close()

	err := svc.HandleStatusChanged(context.Background(), statusChangedMessage(t, "ev_3"))
	require.NoError(t, err)
	assert.Len(t, rec.got, 1, "dedup failure degrades to at-least-once")
}

func TestHandleStatusChanged_BadEnvelope(t *testing.T) {
	svc, rec, _ := setup(t)

	err := svc.HandleStatusChanged(context.Background(), kafkago.Message{Value: []byte("{not json")})
	assert.Error(t, err)
	assert.Empty(t, rec.got)
}

func TestHandleStatusChanged_NotifierErrorPropagates(t *testing.T) {
	svc, rec, _ := setup(t)
	rec.err = errors.New("smtp down")

	err := svc.HandleStatusChanged(context.Background(), statusChangedMessage(t, "ev_4"))
	assert.Error(t, err)
}
