package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"leadflow/internal/features"
	"leadflow/internal/metrics"
	"leadflow/internal/models"
)

func deferredPayload(t *testing.T, id string, text, transcription string) []byte {
	t.Helper()
	msg := models.IncomingMessage{MessageID: id, SessionID: "default", SenderPhone: testSender, Direction: models.DirectionIncoming}
	if text != "" {
		msg.Text = models.StringPtr(text)
	}
	if transcription != "" {
		msg.MediaTranscription = models.StringPtr(transcription)
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestMergeDeferred(t *testing.T) {
	logger, hook := newTestLogger()

	merged := MergeDeferred([][]byte{
		deferredPayload(t, "m1", "preciso de correia", ""),
		[]byte("{broken"),
		deferredPayload(t, "m2", "", "modelo A42"),
		deferredPayload(t, "m3", "", ""),
	}, logger)

	require.NotNil(t, merged)
	assert.Equal(t, "m3", merged.MessageID, "the latest message supplies the ids")
	require.NotNil(t, merged.Text)
	assert.Equal(t, "preciso de correia\nmodelo A42", *merged.Text)
	assert.Nil(t, merged.MediaTranscription)
	assert.Len(t, hook.AllEntries(), 1)
}

func TestMergeDeferred_NothingDecodable(t *testing.T) {
	logger, _ := newTestLogger()
	assert.Nil(t, MergeDeferred([][]byte{[]byte("nope")}, logger))
	assert.Nil(t, MergeDeferred(nil, logger))
}

func TestMergeDeferred_NoText(t *testing.T) {
	logger, _ := newTestLogger()
	merged := MergeDeferred([][]byte{deferredPayload(t, "m1", "", "")}, logger)
	require.NotNil(t, merged)
	assert.Nil(t, merged.Text)
}

func TestScheduler_FlushDeferred(t *testing.T) {
	logger, _ := newTestLogger()
	gate, clock := newTestGate(t)
	ctx := context.Background()

	_, err := gate.Acquire(ctx, testSender)
	require.NoError(t, err)
	require.NoError(t, gate.Defer(ctx, testSender, deferredPayload(t, "m2", "tem correia A42?", "")))
	require.NoError(t, gate.Defer(ctx, testSender, deferredPayload(t, "m3", "quero 3", "")))

	processor := &mockProcessor{}
	processor.On("ProcessDeferred", mock.Anything, mock.MatchedBy(func(msg *models.IncomingMessage) bool {
		return msg.MessageID == "m3" && msg.Text != nil && *msg.Text == "tem correia A42?\nquero 3"
	})).Return(&IngestionResult{Accepted: true}, nil).Once()

	s := NewScheduler(SchedulerConfig{}, processor, gate, nil, nil, nil, metrics.NewPipeline(), logger)

	assert.Zero(t, s.FlushDeferred(ctx), "gate still open")
	processor.AssertNotCalled(t, "ProcessDeferred", mock.Anything, mock.Anything)

	clock.Advance(6 * time.Second)
	assert.Equal(t, 1, s.FlushDeferred(ctx))
	assert.Zero(t, s.FlushDeferred(ctx), "queue was drained")
	processor.AssertExpectations(t)
}

func TestScheduler_FlushDeferredProcessorError(t *testing.T) {
	logger, hook := newTestLogger()
	gate, _ := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, gate.Defer(ctx, testSender, deferredPayload(t, "m1", "oi", "")))

	processor := &mockProcessor{}
	processor.On("ProcessDeferred", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	s := NewScheduler(SchedulerConfig{}, processor, gate, nil, nil, nil, nil, logger)
	assert.Equal(t, 1, s.FlushDeferred(ctx))
	require.NotEmpty(t, hook.AllEntries())
	assert.Contains(t, hook.AllEntries()[0].Message, "Failed to process merged deferred messages")
}

func TestScheduler_FlushDisabledByFlag(t *testing.T) {
	logger, _ := newTestLogger()
	gate, _ := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, gate.Defer(ctx, testSender, deferredPayload(t, "m1", "oi", "")))

	flags := newTestFlags(t, false)
	require.NoError(t, flags.Disable(features.FlagDeferredFlush))
	processor := &mockProcessor{}

	s := NewScheduler(SchedulerConfig{}, processor, gate, nil, nil, flags, nil, logger)
	assert.Zero(t, s.FlushDeferred(ctx))
	processor.AssertNotCalled(t, "ProcessDeferred", mock.Anything, mock.Anything)

	pending, err := gate.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestScheduler_CleanupUsesRetention(t *testing.T) {
	logger, _ := newTestLogger()
	now := time.Date(2024, 5, 31, 3, 0, 0, 0, time.UTC)

	audit := &mockAuditStore{}
	audit.On("DeleteEventsBefore", mock.Anything, now.AddDate(0, 0, -30)).Return(int64(4), nil).Once()

	s := NewScheduler(SchedulerConfig{RetentionDays: 30}, nil, nil, nil, audit, nil, nil, logger)
	s.now = func() time.Time { return now }
	s.runCleanup(context.Background())
	audit.AssertExpectations(t)
}

func TestScheduler_CleanupPurgesNotifications(t *testing.T) {
	d, _ := newTestDispatcher(t, NotificationConfig{Expiry: time.Minute})
	_, err := d.Create(context.Background(), notification(5, "velha"))
	require.NoError(t, err)

	logger, hook := newTestLogger()
	s := NewScheduler(SchedulerConfig{}, nil, nil, d, nil, nil, nil, logger)
	s.runCleanup(context.Background())

	_, total, err := d.List(context.Background(), 5, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, int64(1), hook.LastEntry().Data[LogFieldCount])
}

func TestScheduler_StartStop(t *testing.T) {
	logger, _ := newTestLogger()
	cleaned := make(chan struct{}, 1)
	audit := &mockAuditStore{}
	audit.On("DeleteEventsBefore", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		select {
		case cleaned <- struct{}{}:
		default:
		}
	}).Return(int64(0), nil)

	s := NewScheduler(SchedulerConfig{FlushInterval: time.Hour, CleanupInterval: time.Hour}, nil, nil, nil, audit, nil, nil, logger)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	select {
	case <-cleaned:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not run at start")
	}

	s.Stop()
	s.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	logger, _ := newTestLogger()
	s := NewScheduler(SchedulerConfig{FlushInterval: time.Hour, CleanupInterval: time.Hour}, nil, nil, nil, nil, nil, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
