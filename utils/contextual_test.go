package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-chatbot-backend/models"
)

type stubClassifier struct {
	result *models.ClassificationResult
	err    error
}

func (s stubClassifier) Classify(context.Context, string, *models.ConversationContext) (*models.ClassificationResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.result
	return &out, nil
}

var defaultBonuses = Bonuses{SameIntent: 0.1, RelatedIntent: 0.05, Entity: 0.05}

func TestContextualClassifier_Adjust(t *testing.T) {
	cc := NewContextualClassifier(nil, loadCatalog(t), defaultBonuses)

	tests := []struct {
		name       string
		intent     models.MessageIntent
		confidence float64
		entities   map[string]string
		conv       *models.ConversationContext
		want       float64
	}{
		{
			name:       "no previous intent",
			intent:     models.IntentOrderStatus,
			confidence: 0.6,
			conv:       &models.ConversationContext{},
			want:       0.6,
		},
		{
			name:       "same intent",
			intent:     models.IntentOrderStatus,
			confidence: 0.6,
			conv:       &models.ConversationContext{CurrentIntent: models.IntentOrderStatus},
			want:       0.7,
		},
		{
			name:       "related intent",
			intent:     models.IntentReturnProduct,
			confidence: 0.6,
			conv:       &models.ConversationContext{CurrentIntent: models.IntentRefundRequest},
			want:       0.65,
		},
		{
			name:       "unrelated intent",
			intent:     models.IntentBillingInquiry,
			confidence: 0.6,
			conv:       &models.ConversationContext{CurrentIntent: models.IntentOrderStatus},
			want:       0.6,
		},
		{
			name:       "relevant entity in message",
			intent:     models.IntentOrderStatus,
			confidence: 0.6,
			entities:   map[string]string{"order_number": "12345"},
			conv:       &models.ConversationContext{},
			want:       0.65,
		},
		{
			name:       "relevant entity remembered by session",
			intent:     models.IntentAccountHelp,
			confidence: 0.6,
			conv:       &models.ConversationContext{Entities: map[string]string{"email": "a@b.co"}},
			want:       0.65,
		},
		{
			name:       "irrelevant entity",
			intent:     models.IntentAccountHelp,
			confidence: 0.6,
			entities:   map[string]string{"device": "iphone"},
			conv:       &models.ConversationContext{},
			want:       0.6,
		},
		{
			name:       "bonuses combine",
			intent:     models.IntentOrderStatus,
			confidence: 0.6,
			entities:   map[string]string{"order_number": "12345"},
			conv:       &models.ConversationContext{CurrentIntent: models.IntentOrderStatus},
			want:       0.75,
		},
		{
			name:       "capped at one",
			intent:     models.IntentOrderStatus,
			confidence: 0.97,
			entities:   map[string]string{"order_number": "12345"},
			conv:       &models.ConversationContext{CurrentIntent: models.IntentOrderStatus},
			want:       1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cc.Adjust(tt.intent, tt.confidence, tt.entities, tt.conv)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestContextualClassifier_Classify(t *testing.T) {
	catalog := loadCatalog(t)
	base := stubClassifier{result: &models.ClassificationResult{
		Intent:     models.IntentOrderStatus,
		Confidence: 0.6,
		Entities:   map[string]string{},
	}}
	cc := NewContextualClassifier(base, catalog, defaultBonuses)

	t.Run("applies bonuses from context", func(t *testing.T) {
		result, err := cc.Classify(context.Background(), "track", &models.ConversationContext{CurrentIntent: models.IntentShippingInfo})
		require.NoError(t, err)
		assert.InDelta(t, 0.65, result.Confidence, 1e-9)
	})

	t.Run("no context leaves confidence alone", func(t *testing.T) {
		result, err := cc.Classify(context.Background(), "track", nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.6, result.Confidence, 1e-9)
	})

	t.Run("configurable bonuses", func(t *testing.T) {
		zero := NewContextualClassifier(base, catalog, Bonuses{})
		result, err := zero.Classify(context.Background(), "track", &models.ConversationContext{CurrentIntent: models.IntentOrderStatus})
		require.NoError(t, err)
		assert.InDelta(t, 0.6, result.Confidence, 1e-9)
	})

	t.Run("errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		failing := NewContextualClassifier(stubClassifier{err: boom}, catalog, defaultBonuses)
		_, err := failing.Classify(context.Background(), "track", &models.ConversationContext{})
		assert.ErrorIs(t, err, boom)
	})
}
