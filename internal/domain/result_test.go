package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKilledResult_PreservesPrior(t *testing.T) {
	t.Parallel()

	prior := PartialResult(json.RawMessage(`{"plan":["step 1","step 2"]}`))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	r := KilledResult("admin-1", "policy violation", at, prior)
	require.NoError(t, r.Validate())

	data, err := MarshalResult(r)
	require.NoError(t, err)

	decoded, err := UnmarshalResult(data)
	require.NoError(t, err)
	require.NotNil(t, decoded.Killed)
	assert.Equal(t, ResultKindKilled, decoded.Kind)
	assert.Equal(t, "admin-1", decoded.Killed.By)
	assert.Equal(t, "policy violation", decoded.Killed.Reason)
	assert.True(t, at.Equal(decoded.Killed.At))
	require.NotNil(t, decoded.Killed.Prior)
	assert.JSONEq(t, `{"plan":["step 1","step 2"]}`, string(decoded.Killed.Prior.Output))
}

func TestResult_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  *Result
		wantErr bool
	}{
		{name: "output", result: OutputResult(json.RawMessage(`{"ok":true}`))},
		{name: "empty partial", result: PartialResult(nil)},
		{name: "killed without prior", result: KilledResult("a", "r", time.Now(), nil)},
		{name: "unknown kind", result: &Result{Kind: "other"}, wantErr: true},
		{name: "killed without kill", result: &Result{Kind: ResultKindKilled}, wantErr: true},
		{
			name:    "output with kill data",
			result:  &Result{Kind: ResultKindOutput, Killed: &Kill{}},
			wantErr: true,
		},
		{
			name:    "invalid json output",
			result:  &Result{Kind: ResultKindOutput, Output: json.RawMessage(`{`)},
			wantErr: true,
		},
		{
			name: "nested kill",
			result: KilledResult("a", "r", time.Now(),
				KilledResult("b", "s", time.Now(), nil)),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResult)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUnmarshalResult_Empty(t *testing.T) {
	t.Parallel()

	r, err := UnmarshalResult(nil)
	assert.NoError(t, err)
	assert.Nil(t, r)

	data, err := MarshalResult(nil)
	assert.NoError(t, err)
	assert.Nil(t, data)
}
