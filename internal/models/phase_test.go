package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePhase(t *testing.T) {
	tests := []struct {
		input   string
		want    Phase
		wantErr bool
	}{
		{"P0", PhaseDiscovery, false},
		{"p3", PhaseImplementation, false},
		{"3", PhaseImplementation, false},
		{"implementation", PhaseImplementation, false},
		{"MONITORING", PhaseMonitoring, false},
		{" P7 ", PhaseMonitoring, false},
		{"P8", 0, true},
		{"-1", 0, true},
		{"", 0, true},
		{"shipping", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePhase(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestPhase_StringAndName(t *testing.T) {
	assert.Equal(t, "P0", PhaseDiscovery.String())
	assert.Equal(t, "P4", PhaseTesting.String())
	assert.Equal(t, "Discovery", PhaseDiscovery.Name())
	assert.Equal(t, "Release", PhaseRelease.Name())
	assert.Equal(t, "Unknown", Phase(42).Name())
}

func TestPhase_JSON(t *testing.T) {
	data, err := json.Marshal(PhaseReview)
	require.NoError(t, err)
	assert.Equal(t, `"P5"`, string(data))

	var p Phase
	require.NoError(t, json.Unmarshal([]byte(`"P5"`), &p))
	assert.Equal(t, PhaseReview, p)

	require.NoError(t, json.Unmarshal([]byte(`2`), &p))
	assert.Equal(t, PhaseDesign, p)

	assert.Error(t, json.Unmarshal([]byte(`"P9"`), &p))
	assert.Error(t, json.Unmarshal([]byte(`true`), &p))

	_, err = json.Marshal(Phase(11))
	assert.Error(t, err)
}
