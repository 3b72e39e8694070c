package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loadInput struct {
	VideoID         string  `json:"video_id" validate:"required,max=64"`
	PositionSeconds float64 `json:"position_seconds" validate:"gte=0"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	errs, ok := v.Validate(loadInput{VideoID: "abc123", PositionSeconds: 0})
	assert.True(t, ok)
	assert.Empty(t, errs)

	errs, ok = v.Validate(loadInput{PositionSeconds: -1})
	require.False(t, ok)
	require.Len(t, errs, 2)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "REQUIRED", byField["video_id"].Code)
	assert.Equal(t, "GTE", byField["position_seconds"].Code)
	assert.Equal(t, "position_seconds must be greater than or equal to 0", byField["position_seconds"].Message)
}
