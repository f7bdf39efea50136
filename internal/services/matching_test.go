package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/openclaw/marketplace/internal/chance"
	"github.com/openclaw/marketplace/internal/models"
)

func TestMatcherOrder(t *testing.T) {
	cases := []struct {
		name string
		tier string
		roll float64
		want models.ClaimOrder
	}{
		{"new tier is FIFO", models.TierNew, 0.99, models.ClaimOrderFIFO},
		{"proven sees price first", models.TierProven, 0.99, models.ClaimOrderPriceDesc},
		{"elite sees price first", models.TierElite, 0.5, models.ClaimOrderPriceDesc},
		{"bypass forces FIFO", models.TierElite, 0.19, models.ClaimOrderFIFO},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMatcher(chance.NewSequence(tc.roll))
			assert.Equal(t, tc.want, m.Order(tc.tier))
		})
	}
}

func TestMatcherQuery(t *testing.T) {
	w := &models.Worker{ID: uuid.New(), Tier: models.TierTrusted, Profile: models.DefaultProfile()}
	w.Profile.Preferences.Accept = []string{"code"}
	w.Profile.Preferences.MinPrice = 4
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	q := NewMatcher(chance.NewSequence(0.9)).Query(w, now)
	assert.Equal(t, w.ID, q.WorkerID)
	assert.Equal(t, now, q.Now)
	assert.Equal(t, []string{"code"}, q.Accept)
	assert.Equal(t, int64(4), q.MinPrice)

	assert.True(t, q.Matches(&models.Task{Type: "code", PriceCents: 5, Status: models.TaskStatusPending, Deadline: now.Add(time.Minute)}))
	assert.False(t, q.Matches(&models.Task{Type: "chat", PriceCents: 5, Status: models.TaskStatusPending, Deadline: now.Add(time.Minute)}))
	assert.False(t, q.Matches(&models.Task{Type: "code", PriceCents: 3, Status: models.TaskStatusPending, Deadline: now.Add(time.Minute)}))
	assert.False(t, q.Matches(&models.Task{Type: "code", PriceCents: 5, Status: models.TaskStatusPending, Deadline: now}))
}
