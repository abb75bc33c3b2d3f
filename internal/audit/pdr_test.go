package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/aiorg/internal/store/memstore"
)

func TestRecordAndHistory(t *testing.T) {
	ctx := context.Background()
	w := NewPDRWriter(memstore.New())

	inputs := map[string]string{"agent": "ai-qa"}
	e1, err := w.Record(ctx, ActionClaim, inputs, OutcomeSuccess, "t1", "claimed")
	require.NoError(t, err)
	_, err = w.Record(ctx, ActionCreate, nil, OutcomeSuccess, "t2", "")
	require.NoError(t, err)

	assert.NotEmpty(t, e1.ID)
	assert.Equal(t, hashInputs(inputs), e1.InputsHash)

	history, err := w.History(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ActionClaim, history[0].Action)
	assert.Equal(t, "claimed", history[0].Details)
}

func TestHashInputsStable(t *testing.T) {
	a := hashInputs(map[string]int{"x": 1, "y": 2})
	b := hashInputs(map[string]int{"y": 2, "x": 1})
	assert.Equal(t, a, b, "map keys are marshaled sorted")
	assert.Len(t, a, 64)
	assert.Equal(t, "hash_error", hashInputs(make(chan int)))
}
