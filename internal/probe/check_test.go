package probe

import (
	"testing"

	"github.com/sessionhold/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckEval(t *testing.T) {
	resp := session.NewResponse(201, []byte(`{"ok":true,"n":3}`),
		session.Headers{{Name: "X-Request-Id", Value: "abc"}, {Name: "x-request-id", Value: "def"}},
		"application/json")

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"default accepts 2xx", "", true},
		{"status", "status == 201", true},
		{"status mismatch", "status == 200", false},
		{"json body", "JSON.parse(body).n > 2", true},
		{"first header value", `headers["x-request-id"] == "abc"`, true},
		{"content type", `contentType == "application/json"`, true},
		{"truthy number", "JSON.parse(body).n", true},
		{"missing header", `headers["x-absent"] !== undefined`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := CompileCheck(tt.expr)
			require.NoError(t, err)

			got, err := c.Eval(resp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckDefaultRejects(t *testing.T) {
	c, err := CompileCheck("  ")
	require.NoError(t, err)
	assert.Equal(t, "200 <= status < 400", c.String())

	for _, code := range []int{100, 404, 500} {
		ok, err := c.Eval(session.NewResponse(code, nil, nil, ""))
		require.NoError(t, err)
		assert.False(t, ok, code)
	}
}

func TestCheckErrors(t *testing.T) {
	_, err := CompileCheck("status ==")
	require.Error(t, err)

	c, err := CompileCheck("JSON.parse(body).x")
	require.NoError(t, err)
	_, err = c.Eval(session.NewResponse(200, []byte("not json"), nil, ""))
	assert.Error(t, err)
}

func TestCheckInterruptsRunaway(t *testing.T) {
	c, err := CompileCheck("while (true) {}")
	require.NoError(t, err)

	ok, err := c.Eval(session.NewResponse(200, nil, nil, ""))
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "timed out")
}
