package command

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, qos byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, qos, payload})
	return nil
}

type fakeState struct {
	pump map[string]string
	mode map[string]string
}

func newFakeState() *fakeState {
	return &fakeState{pump: map[string]string{}, mode: map[string]string{}}
}

func (f *fakeState) SetPumpState(_ context.Context, uid, v string) (*sgdmodels.DeviceState, error) {
	f.pump[uid] = v
	return &sgdmodels.DeviceState{DeviceUID: uid, PumpState: v}, nil
}

func (f *fakeState) SetControlMode(_ context.Context, uid, v string) (*sgdmodels.DeviceState, error) {
	f.mode[uid] = v
	return &sgdmodels.DeviceState{DeviceUID: uid, ControlMode: v}, nil
}

func TestSend_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewService(pub, newFakeState(), logger.Nop())

	err := svc.Send(context.Background(), "A", sgdmodels.CommandRequest{
		Action:  sgdmodels.ActionSetLight,
		Payload: map[string]interface{}{"status": "ON"},
	})
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)

	msg := pub.msgs[0]
	assert.Equal(t, "smartgarden/device/A/command", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.payload, &body))
	assert.Equal(t, "SET_LIGHT", body["action"])
	assert.Equal(t, map[string]interface{}{"status": "ON"}, body["payload"])
}

func TestSend_UpdatesStateImmediately(t *testing.T) {
	st := newFakeState()
	svc := NewService(&fakePublisher{}, st, logger.Nop())
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, "A", sgdmodels.CommandRequest{
		Action: sgdmodels.ActionControlPump, Payload: map[string]interface{}{"state": "ON"},
	}))
	require.NoError(t, svc.Send(ctx, "A", sgdmodels.CommandRequest{
		Action: sgdmodels.ActionSetMode, Payload: map[string]interface{}{"mode": "MANUAL"},
	}))
	require.NoError(t, svc.Send(ctx, "B", sgdmodels.CommandRequest{Action: sgdmodels.ActionControlPump}))

	assert.Equal(t, "ON", st.pump["A"])
	assert.Equal(t, "MANUAL", st.mode["A"])
	assert.NotContains(t, st.pump, "B")
}

func TestSend_MissingAction(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewService(pub, newFakeState(), logger.Nop())

	err := svc.Send(context.Background(), "A", sgdmodels.CommandRequest{Action: "  "})
	var appErr *api_models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, api_models.ErrInvalidRequest, appErr.Code)
	assert.Empty(t, pub.msgs)
}

func TestSend_PublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	svc := NewService(pub, newFakeState(), logger.Nop())

	err := svc.Send(context.Background(), "A", sgdmodels.CommandRequest{Action: sgdmodels.ActionSetPump})
	var appErr *api_models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, api_models.ErrInternal, appErr.Code)
}
