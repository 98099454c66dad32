package gym

import (
	"testing"

	"stockenv/internal/env"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionShapes(t *testing.T) {
	schema, err := compileStepSchema()
	require.NoError(t, err)

	cases := []struct {
		name string
		body string
		want env.Action
	}{
		{"array", `{"action":[0.5,0.25]}`, env.Action{Type: 0.5, Amount: 0.25}},
		{"object", `{"type":1.5,"amount":1}`, env.Action{Type: 1.5, Amount: 1}},
		{"integers", `{"action":[2,0]}`, env.Action{Type: 2, Amount: 0}},
		{"out of range is left to the env", `{"type":7,"amount":-1}`, env.Action{Type: 7, Amount: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseAction(schema, []byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, body := range []string{`{"action":[1,2,3]}`, `{"type":"1","amount":1}`, `null`, ``} {
		_, err := parseAction(schema, []byte(body))
		assert.Error(t, err, body)
	}
}
