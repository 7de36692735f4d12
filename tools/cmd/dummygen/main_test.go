package main

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/qr-payment-confirm/internal/sandbox"
)

func TestGenerate_LoadsBack(t *testing.T) {
	scenarios := generate(rand.New(rand.NewSource(7)), 50, 5*time.Second)
	require.Len(t, scenarios, 50)

	var buf bytes.Buffer
	require.NoError(t, sandbox.WriteScenarios(&buf, scenarios))

	loaded, err := sandbox.LoadScenarios(&buf)
	require.NoError(t, err)
	require.Len(t, loaded, len(scenarios))

	seen := make(map[string]bool)
	for i, sc := range loaded {
		key := sc.Amount.StringFixed(2)
		assert.False(t, seen[key], "duplicate amount %s", key)
		seen[key] = true

		assert.True(t, sc.Amount.Equal(scenarios[i].Amount))
		assert.Equal(t, scenarios[i].Outcome, sc.Outcome)
		assert.Equal(t, scenarios[i].After, sc.After)
		assert.LessOrEqual(t, sc.After, 5*time.Second)
		if sc.Outcome == sandbox.OutcomeDecline {
			assert.NotEmpty(t, sc.ResponseCode)
			assert.Zero(t, sc.After)
		}
	}
	assert.Equal(t, "0.01", loaded[0].Amount.StringFixed(2))
}
