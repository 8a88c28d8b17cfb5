package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCalculator(t *testing.T, args string) (map[string]float64, error) {
	t.Helper()
	out, err := NewCalculatorTool().Run(context.Background(), args)
	if err != nil {
		return nil, err
	}
	var result map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	return result, nil
}

func TestCalculatorOperations(t *testing.T) {
	tests := []struct {
		args string
		want float64
	}{
		{`{"first_num": 2, "second_num": 3, "operator": "+"}`, 5},
		{`{"first_num": 2, "second_num": 3, "operator": "-"}`, -1},
		{`{"first_num": 2, "second_num": 3, "operator": "*"}`, 6},
		{`{"first_num": 6, "second_num": 3, "operator": "/"}`, 2},
		{`{"first_num": 2, "second_num": 10, "operator": "^"}`, 1024},
	}
	for _, tc := range tests {
		got, err := runCalculator(t, tc.args)
		require.NoError(t, err)
		require.Equal(t, tc.want, got["result"])
	}
}

func TestCalculatorDivisionByZero(t *testing.T) {
	_, err := runCalculator(t, `{"first_num": 1, "second_num": 0, "operator": "/"}`)
	require.Error(t, err)
}

func TestCalculatorBadInput(t *testing.T) {
	_, err := runCalculator(t, `not json`)
	require.Error(t, err)

	_, err = runCalculator(t, `{"first_num": 1, "second_num": 2, "operator": "%"}`)
	require.Error(t, err)
}

func TestRegistryExecuteNeverReturnsGoErrors(t *testing.T) {
	r := NewRegistry(NewCalculatorTool())

	out := r.Execute(context.Background(), "calculator", `{"first_num": 1, "second_num": 0, "operator": "/"}`)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Contains(t, payload["error"], "division by zero")

	out = r.Execute(context.Background(), "does_not_exist", `{}`)
	require.Contains(t, out, "unknown tool")
}

func TestRegistryDefinitions(t *testing.T) {
	r := NewRegistry(NewCalculatorTool())
	defs := r.Definitions()
	require.Len(t, defs, 1)
	require.Equal(t, "calculator", defs[0].Name)
	require.NotEmpty(t, defs[0].Description)
	require.NotEmpty(t, defs[0].Parameters)
}
