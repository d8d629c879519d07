package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorchat-backend/internal/model"
)

func TestPutSubscription(t *testing.T) {
	env := newTestEnv(t)
	r := testRouter(env)

	w := performRequest(r, http.MethodPut, "/api/subscriptions",
		`{"endpoint":"https://push.example.com/sub1","p256dh":"key","auth":"secret","subscribed_devices":["esp32_wifi_001","arduino_eth_001"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var sub model.PushSubscription
	err := env.store.DB().Preload("Devices").First(&sub, "endpoint = ?", "https://push.example.com/sub1").Error
	require.NoError(t, err)
	assert.Equal(t, "key", sub.P256DH)
	assert.Len(t, sub.Devices, 2)
}

func TestPutSubscription_ReplaceUpdatesDeviceSet(t *testing.T) {
	env := newTestEnv(t)
	r := testRouter(env)

	w := performRequest(r, http.MethodPut, "/api/subscriptions",
		`{"endpoint":"https://push.example.com/sub1","p256dh":"key","auth":"secret","subscribed_devices":["esp32_wifi_001"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = performRequest(r, http.MethodPut, "/api/subscriptions",
		`{"endpoint":"https://push.example.com/sub1","p256dh":"key2","auth":"secret2","subscribed_devices":["arduino_eth_001"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var sub model.PushSubscription
	err := env.store.DB().Preload("Devices").First(&sub, "endpoint = ?", "https://push.example.com/sub1").Error
	require.NoError(t, err)
	assert.Equal(t, "key2", sub.P256DH)
	require.Len(t, sub.Devices, 1)
	assert.Equal(t, "arduino_eth_001", sub.Devices[0].DeviceID)
}

func TestPutSubscription_RequiresFields(t *testing.T) {
	env := newTestEnv(t)
	r := testRouter(env)

	w := performRequest(r, http.MethodPut, "/api/subscriptions", `{"endpoint":"https://push.example.com/sub1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSubscription(t *testing.T) {
	env := newTestEnv(t)
	r := testRouter(env)

	w := performRequest(r, http.MethodPut, "/api/subscriptions",
		`{"endpoint":"https://push.example.com/sub1","p256dh":"key","auth":"secret","subscribed_devices":["esp32_wifi_001"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = performRequest(r, http.MethodGet, "/api/subscriptions?endpoint=https://push.example.com/sub1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		SubscribedDevices []string `json:"subscribed_devices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"esp32_wifi_001"}, body.SubscribedDevices)
}

func TestGetSubscription_NotFound(t *testing.T) {
	env := newTestEnv(t)
	r := testRouter(env)

	w := performRequest(r, http.MethodGet, "/api/subscriptions?endpoint=https://push.example.com/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSubscription(t *testing.T) {
	env := newTestEnv(t)
	r := testRouter(env)

	w := performRequest(r, http.MethodPut, "/api/subscriptions",
		`{"endpoint":"https://push.example.com/sub1","p256dh":"key","auth":"secret"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = performRequest(r, http.MethodDelete, "/api/subscriptions",
		`{"endpoint":"https://push.example.com/sub1"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	var count int64
	require.NoError(t, env.store.DB().Model(&model.PushSubscription{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}
