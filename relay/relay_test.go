package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/kwv/reskin/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearMQTTEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_PUBLISH_PREFIX"} {
		t.Setenv(k, "")
	}
}

// ---------------------------------------------------------------------------
// Config / InitMQTT
// ---------------------------------------------------------------------------

func TestConfig_Resolve(t *testing.T) {
	clearMQTTEnv(t)
	c := Config{Broker: "tcp://file:1883", Prefix: "shop/"}.Resolve()
	assert.Equal(t, "tcp://file:1883", c.Broker)
	assert.Equal(t, "reskin", c.ClientID)
	assert.Equal(t, "shop", c.Prefix)

	t.Setenv("MQTT_BROKER", "tcp://env:1883")
	t.Setenv("MQTT_PUBLISH_PREFIX", "viewer")
	c = Config{Broker: "tcp://file:1883"}.Resolve()
	assert.Equal(t, "tcp://env:1883", c.Broker)
	assert.Equal(t, "viewer", c.Prefix)
}

func TestInitMQTT_Disabled(t *testing.T) {
	clearMQTTEnv(t)
	client, err := InitMQTT(Config{}, func(string, Command, error) {})
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_NoHandler(t *testing.T) {
	clearMQTTEnv(t)
	_, err := InitMQTT(Config{Broker: "tcp://localhost:1883"}, nil)
	assert.Error(t, err)
}

func TestClient_IsConnected(t *testing.T) {
	c := &Client{}
	assert.False(t, c.IsConnected())
	c.setConnected(true)
	assert.True(t, c.IsConnected())
	c.setConnected(false)
	assert.False(t, c.IsConnected())
}

// ---------------------------------------------------------------------------
// command subscription
// ---------------------------------------------------------------------------

func TestSessionFromTopic(t *testing.T) {
	tests := []struct {
		name   string
		topic  string
		wantID string
		wantOK bool
	}{
		{name: "session command", topic: "reskin/abc/assign", wantID: "abc", wantOK: true},
		{name: "other prefix", topic: "other/abc/assign"},
		{name: "events topic", topic: "reskin/abc/events"},
		{name: "nested id", topic: "reskin/a/b/assign"},
		{name: "empty id", topic: "reskin//assign"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := sessionFromTopic("reskin", tt.topic)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

type received struct {
	mu   sync.Mutex
	ids  []string
	cmds []Command
	errs []error
}

func (r *received) handle(id string, cmd Command, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	r.cmds = append(r.cmds, cmd)
	r.errs = append(r.errs, err)
}

func TestClient_OnConnectSubscribesAndDispatches(t *testing.T) {
	clearMQTTEnv(t)
	mock := NewMockClient()
	rec := &received{}
	c := newClientWithMock(mock, Config{Prefix: "shop"}, rec.handle)
	mock.SetOnConnect(c.onConnect)

	require.NoError(t, mock.Connect().Error())
	assert.True(t, c.IsConnected())
	assert.Equal(t, []string{"shop/+/assign"}, mock.Subscriptions())

	mock.SimulateMessage("shop/s-1/assign", []byte(`{"slot":"Beine","preset":"aluminium"}`))
	mock.SimulateMessage("shop/s-2/assign", []byte(`not json`))
	mock.SimulateMessage("shop/s-1/events", []byte(`{}`))

	require.Len(t, rec.ids, 2)
	assert.Equal(t, "s-1", rec.ids[0])
	assert.Equal(t, Command{Slot: "Beine", Preset: "aluminium"}, rec.cmds[0])
	assert.NoError(t, rec.errs[0])
	assert.Equal(t, "s-2", rec.ids[1])
	assert.Error(t, rec.errs[1])
}

func TestClient_SubscribeErrorLeavesConnected(t *testing.T) {
	clearMQTTEnv(t)
	mock := NewMockClient()
	mock.SetSubscribeError(errors.New("denied"))
	c := newClientWithMock(mock, Config{}, func(string, Command, error) {})
	mock.SetOnConnect(c.onConnect)

	require.NoError(t, mock.Connect().Error())
	assert.True(t, c.IsConnected())
	assert.Empty(t, mock.Subscriptions())

	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.False(t, mock.IsConnected())
}

func TestTopicMatches(t *testing.T) {
	assert.True(t, topicMatches("a/+/c", "a/b/c"))
	assert.True(t, topicMatches("a/#", "a/b/c"))
	assert.False(t, topicMatches("a/+", "a/b/c"))
	assert.False(t, topicMatches("a/b/c", "a/b"))
}

// ---------------------------------------------------------------------------
// Publisher
// ---------------------------------------------------------------------------

func TestPublisher_NotConnected(t *testing.T) {
	p := NewPublisher(nil, "")
	assert.Error(t, p.PublishEvent("s", scene.Event{Type: scene.EventReady}))

	mock := NewMockClient()
	p = NewPublisher(mock, "")
	assert.Error(t, p.PublishGate("s", true))
}

func TestPublisher_PublishEvent(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisher(mock, "shop")

	require.NoError(t, p.PublishEvent("s-1", scene.Event{Type: scene.EventReady, Generation: 3, URL: "/models/a.glb"}))
	msgs := mock.GetPublishedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "shop/s-1/events", msgs[0].Topic)
	assert.False(t, msgs[0].Retain)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &ev))
	assert.Equal(t, "scene.ready", ev["type"])
	assert.EqualValues(t, 3, ev["generation"])
}

func TestPublisher_GateIsRetained(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisher(mock, "shop")

	require.NoError(t, p.PublishEvent("s-1", scene.GateEvent(true)))
	msgs := mock.GetPublishedMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "shop/s-1/events", msgs[0].Topic)
	assert.Equal(t, "shop/s-1/ar", msgs[1].Topic)
	assert.True(t, msgs[1].Retain)

	var gate gatePayload
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &gate))
	assert.True(t, gate.Enabled)
	assert.Equal(t, "s-1", gate.Session)

	enabled, ok := p.Gate("s-1")
	assert.True(t, ok)
	assert.True(t, enabled)

	require.NoError(t, p.ClearSession("s-1"))
	_, ok = p.Gate("s-1")
	assert.False(t, ok)
	last := mock.GetPublishedMessages()[2]
	assert.Equal(t, "shop/s-1/ar", last.Topic)
	assert.Empty(t, last.Payload)
	assert.True(t, last.Retain)
}

func TestPublisher_PublishError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetPublishError(errors.New("broker full"))
	p := NewPublisher(mock, "shop")

	err := p.PublishEvent("s-1", scene.Event{Type: scene.EventReady})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shop/s-1/events")
	_, ok := p.Gate("s-1")
	assert.False(t, ok)
}
