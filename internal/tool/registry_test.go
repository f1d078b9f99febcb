package tool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() Tool {
	return Tool{
		Name:        "echo",
		Description: "echoes the text argument",
		Schema: ObjectSchema(map[string]Property{
			"text": {Type: "string", Description: "text to echo"},
		}, "text"),
		Executor: ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			return args["text"].(string), nil
		}),
	}
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	require.NoError(t, r.Register(echoTool()))

	res := r.Execute(context.Background(), "call_1", "echo", json.RawMessage(`{"text":"hello"}`))

	assert.True(t, res.OK)
	assert.Equal(t, "hello", res.Output)
	assert.Equal(t, "call_1", res.CallID)
	assert.Equal(t, "echo", res.Name)
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(time.Second, nil)

	res := r.Execute(context.Background(), "call_1", "missing", nil)

	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "unknown tool")
}

func TestRegistryExecuteInvalidArguments(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	require.NoError(t, r.Register(echoTool()))

	tests := []struct {
		name string
		args string
	}{
		{name: "missing required", args: `{}`},
		{name: "wrong type", args: `{"text":42}`},
		{name: "unexpected argument", args: `{"text":"hi","extra":true}`},
		{name: "malformed json", args: `{"text":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Execute(context.Background(), "c", "echo", json.RawMessage(tt.args))
			assert.False(t, res.OK)
			assert.Contains(t, res.Error, "invalid arguments")
		})
	}
}

func TestRegistryExecuteTimeout(t *testing.T) {
	r := NewRegistry(50*time.Millisecond, nil)
	require.NoError(t, r.Register(Tool{
		Name:   "slow",
		Schema: ObjectSchema(nil),
		Executor: ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			select {
			case <-time.After(5 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}),
	}))

	res := r.Execute(context.Background(), "c", "slow", json.RawMessage(`{}`))

	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "timed out")
}

func TestRegistryExecutePanic(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	require.NoError(t, r.Register(Tool{
		Name:   "boom",
		Schema: ObjectSchema(nil),
		Executor: ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			panic("unexpected state")
		}),
	}))

	res := r.Execute(context.Background(), "c", "boom", json.RawMessage(`{}`))

	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "panicked")
}

func TestSchemaValidateEnum(t *testing.T) {
	s := ObjectSchema(map[string]Property{
		"unit": {Type: "string", Enum: []string{"celsius", "fahrenheit"}},
	})

	assert.NoError(t, s.Validate(map[string]interface{}{"unit": "celsius"}))
	assert.Error(t, s.Validate(map[string]interface{}{"unit": "kelvin"}))
}

func TestSchemaValidateInteger(t *testing.T) {
	s := ObjectSchema(map[string]Property{
		"count": {Type: "integer"},
	})

	assert.NoError(t, s.Validate(map[string]interface{}{"count": float64(3)}))
	assert.Error(t, s.Validate(map[string]interface{}{"count": 3.5}))
}

func TestRegistryDefinitions(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	require.NoError(t, r.Register(echoTool()))

	defs := r.Definitions([]string{"echo", "missing"})

	require.Len(t, defs, 1)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "object", defs[0].Parameters["type"])
}
