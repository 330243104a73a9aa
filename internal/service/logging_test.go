package service

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/models"
)

func TestSanitizeHelpers(t *testing.T) {
	ctx := context.Background()
	verbose := WithVerbose(ctx, true)

	assert.False(t, IsVerboseLogging(ctx))
	assert.True(t, IsVerboseLogging(verbose))

	assert.Equal(t, testSender, SanitizePhoneNumber(verbose, testSender))
	assert.NotEqual(t, testSender, SanitizePhoneNumber(ctx, testSender))

	assert.Equal(t, "quero 5 rolamentos", SanitizeContent(verbose, "quero 5 rolamentos"))
	assert.Equal(t, "[hidden]", SanitizeContent(ctx, "quero 5 rolamentos"))
	assert.Empty(t, SanitizeContent(ctx, ""))
}

func TestLogMessageProcessing(t *testing.T) {
	msg := &models.IncomingMessage{
		MessageID:   "true_5511987654321@c.us_ABCDEF123456",
		SessionID:   "default",
		SenderPhone: testSender,
		Direction:   models.DirectionIncoming,
	}

	t.Run("masked by default", func(t *testing.T) {
		logger, hook := newTestLogger()
		LogMessageProcessing(context.Background(), logger, msg, "quero 5 rolamentos")

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.DebugLevel, entry.Level)
		assert.NotEqual(t, testSender, entry.Data[LogFieldSender])
		assert.NotEqual(t, msg.MessageID, entry.Data[LogFieldMessageID])
		assert.NotContains(t, entry.Data, "content")
	})

	t.Run("verbose", func(t *testing.T) {
		logger, hook := newTestLogger()
		LogMessageProcessing(WithVerbose(context.Background(), true), logger, msg, "quero 5 rolamentos")

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, testSender, entry.Data[LogFieldSender])
		assert.Equal(t, msg.MessageID, entry.Data[LogFieldMessageID])
		assert.Equal(t, "quero 5 rolamentos", entry.Data["content"])
	})
}
