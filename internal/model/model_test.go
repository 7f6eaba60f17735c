package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatioSentinel(t *testing.T) {
	assert.False(t, UndefinedRatio.Defined)
	assert.Equal(t, 0.0, UndefinedRatio.Value)

	r := DefinedRatio(0)
	assert.True(t, r.Defined)
	assert.NotEqual(t, UndefinedRatio, r)
}

func TestWeightedODEmbedsRecord(t *testing.T) {
	w := WeightedOD{
		ODRecord: ODRecord{OriginID: "o1", DestinationID: "f1", Distance: 1500},
		Weight:   0.5,
	}
	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"origin_id":"o1","destination_id":"f1","distance":1500,"weight":0.5}`, string(data))
}

func TestOriginCorrectionUndefined(t *testing.T) {
	assert.False(t, OriginCorrection{}.Undefined())
	assert.False(t, OriginCorrection{Links: 2, UndefinedLinks: 1}.Undefined())
	assert.True(t, OriginCorrection{Links: 2, UndefinedLinks: 2}.Undefined())
}
