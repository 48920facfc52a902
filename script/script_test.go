package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateCondition(t *testing.T) {
	engine := NewRisorEngine(DefaultGlobals())
	ctx := context.Background()

	tests := []struct {
		name       string
		expression string
		payload    map[string]any
		want       bool
	}{
		{
			name:       "boolean comparison",
			expression: `data["count"] > 3`,
			payload:    map[string]any{"count": 5},
			want:       true,
		},
		{
			name:       "false comparison",
			expression: `data["count"] > 3`,
			payload:    map[string]any{"count": 1},
			want:       false,
		},
		{
			name:       "string equality",
			expression: `data["status"] == "ready"`,
			payload:    map[string]any{"status": "ready"},
			want:       true,
		},
		{
			name:       "truthy non-empty string",
			expression: `data["name"]`,
			payload:    map[string]any{"name": "alice"},
			want:       true,
		},
		{
			name:       "literal true",
			expression: "true",
			payload:    map[string]any{},
			want:       true,
		},
		{
			name:       "payload alias",
			expression: `payload["x"] == 1`,
			payload:    map[string]any{"x": 1},
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCondition(ctx, engine, tt.expression, tt.payload)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	t.Run("malformed expression returns error", func(t *testing.T) {
		_, err := EvaluateCondition(ctx, engine, "data[", map[string]any{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid condition")
	})
}

func TestCheckSyntax(t *testing.T) {
	engine := NewRisorEngine(DefaultGlobals())
	ctx := context.Background()

	require.NoError(t, CheckSyntax(ctx, engine, `data["x"] == 1`))

	err := CheckSyntax(ctx, engine, `data["x" ==`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid expression")
}
