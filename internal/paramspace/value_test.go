package paramspace

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValueRendering(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"30":    "30",
		"0.80":  "0.8",
		"1.0":   "1.0",
		"0.05":  "0.05",
		"-1":    "-1",
		"1e3":   "1000.0",
		"false": "false",
		" 2.5 ": "2.5",
	}
	for in, want := range tests {
		v, err := ParseValue(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, v.String(), in)
	}
}

func TestParseValueRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "a;b", "a=b", "two words", "inf", "NaN"} {
		_, err := ParseValue(in)
		assert.Error(t, err, in)
	}
}

func TestValueEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, Int(1).Equal(Float(1)))
	assert.True(t, MustParseValue("0.90").Equal(Float(0.9)))
	assert.False(t, Int(1).Equal(Int(2)))
	assert.True(t, MustParseValue("true").Equal(MustParseValue("true")))
	assert.False(t, MustParseValue("true").Equal(Int(1)))
}

func TestValueJSON(t *testing.T) {
	t.Parallel()

	in := map[string]Value{
		"a": Int(30),
		"b": Float(0.5),
		"c": MustParseValue("false"),
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":30,"b":0.5,"c":"false"}`, string(data))

	var out map[string]Value
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "30", out["a"].String())
	assert.True(t, out["a"].Numeric())
	assert.Equal(t, "0.5", out["b"].String())
	assert.Equal(t, "false", out["c"].String())
}
