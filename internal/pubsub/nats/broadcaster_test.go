package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gitlab.com/nevasik7/alerting/logger"

	"referralstats/internal/config"
	"referralstats/internal/testutil"
)

// MockLogger implements logger.Logger for tests
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string)                       { m.Called(msg) }
func (m *MockLogger) Debugf(msg string, args ...interface{}) { m.Called(msg, args) }
func (m *MockLogger) Info(msg string)                        { m.Called(msg) }
func (m *MockLogger) Infof(msg string, args ...interface{})  { m.Called(msg, args) }
func (m *MockLogger) Warn(msg string)                        { m.Called(msg) }
func (m *MockLogger) Warnf(msg string, args ...interface{})  { m.Called(msg, args) }
func (m *MockLogger) Error(msg string)                       { m.Called(msg) }
func (m *MockLogger) Errorf(msg string, args ...interface{}) { m.Called(msg, args) }
func (m *MockLogger) Fatal(msg string)                       { m.Called(msg) }
func (m *MockLogger) Fatalf(msg string, args ...interface{}) { m.Called(msg, args) }
func (m *MockLogger) Panic(msg string)                       { m.Called(msg) }
func (m *MockLogger) Panicf(msg string, args ...interface{}) { m.Called(msg, args) }

func (m *MockLogger) WithField(key string, value interface{}) logger.Logger {
	m.Called(key, value)
	return m
}

func (m *MockLogger) WithFields(fields map[string]interface{}) logger.Logger {
	m.Called(fields)
	return m
}

// ------------------------ tests not real connection ------------------------

func TestConnect_Validation(t *testing.T) {
	client, err := Connect(nil, testutil.Logger())
	assert.Nil(t, client)
	assert.ErrorContains(t, err, "nats config is required")

	client, err = Connect(&config.NATSConfig{}, testutil.Logger())
	assert.Nil(t, client)
	assert.ErrorContains(t, err, "nats url is required")
}

func TestNilConnection(t *testing.T) {
	mockLogger := new(MockLogger)
	client := &Client{log: mockLogger}

	assert.False(t, client.Ready())
	assert.Equal(t, nats.DISCONNECTED, client.Status())
	assert.Error(t, client.Health(context.Background()))
	assert.Error(t, client.Publish(context.Background(), "global", map[string]int{"a": 1}))
	assert.NoError(t, client.Close())

	mockLogger.AssertNotCalled(t, "Errorf", mock.Anything, mock.Anything)
	mockLogger.AssertNotCalled(t, "Infof", mock.Anything, mock.Anything)
}

// ------------------------ tests in-memory nats connection ------------------------

func runNATS(t *testing.T) string {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1 // random port
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)

	return s.ClientURL()
}

func TestConnectAndClose_Logs(t *testing.T) {
	url := runNATS(t)

	mockLogger := new(MockLogger)
	mockLogger.On("Infof", "Connected to NATS successfully, url=%s", mock.Anything).Once()
	mockLogger.On("Infof", "NATS connection closed gracefully", mock.Anything).Once()

	client, err := Connect(&config.NATSConfig{URL: url}, mockLogger)
	require.NoError(t, err)
	assert.True(t, client.Ready())
	assert.NoError(t, client.Health(context.Background()))

	require.NoError(t, client.Close())
	assert.False(t, client.Ready())
	assert.Equal(t, nats.CLOSED, client.Status())
	assert.Error(t, client.Health(context.Background()))

	// idempotent
	require.NoError(t, client.Close())

	mockLogger.AssertExpectations(t)
	mockLogger.AssertNumberOfCalls(t, "Infof", 2)
}

func TestPublish_UsesPrefixAndJSON(t *testing.T) {
	url := runNATS(t)

	client, err := Connect(&config.NATSConfig{URL: url, BroadcastPrefix: "referrals.stats"}, testutil.Logger())
	require.NoError(t, err)
	defer client.Close()

	got := make(chan []byte, 1)
	sub, err := client.Subscribe(context.Background(), "referrals.stats.global", "", func(_ context.Context, data []byte) error {
		got <- data
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, client.Flush())

	require.NoError(t, client.Publish(context.Background(), "global", map[string]string{"event_id": "0xaa:1"}))

	select {
	case data := <-got:
		var payload map[string]string
		require.NoError(t, json.Unmarshal(data, &payload))
		assert.Equal(t, "0xaa:1", payload["event_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("patch was not delivered")
	}
}

func TestSubscribe_HandlerErrorIsLogged(t *testing.T) {
	url := runNATS(t)

	mockLogger := new(MockLogger)
	mockLogger.On("Infof", mock.Anything, mock.Anything).Maybe()
	logged := make(chan struct{}, 1)
	mockLogger.On("Errorf", "Failed to handle message on %s, error=%v", mock.Anything).
		Run(func(mock.Arguments) { logged <- struct{}{} }).Once()

	client, err := Connect(&config.NATSConfig{URL: url}, mockLogger)
	require.NoError(t, err)
	defer client.Close()

	var mu sync.Mutex
	var calls int
	_, err = client.Subscribe(context.Background(), "referrals.logs", "aggregator", func(context.Context, []byte) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("bad payload")
	})
	require.NoError(t, err)
	require.NoError(t, client.Flush())

	require.NoError(t, client.nc.Publish("referrals.logs", []byte("{")))

	select {
	case <-logged:
	case <-time.After(2 * time.Second):
		t.Fatal("handler error was not logged")
	}

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}
