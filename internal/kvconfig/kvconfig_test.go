package kvconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTrimsAndDropsEmpty(t *testing.T) {
	t.Parallel()

	l := Parse(" a.b=1 ;; c.d = 2;flag;")
	assert.Equal(t, []string{"a.b", "c.d", "flag"}, []string{l[0].Key, l[1].Key, l[2].Key})
	assert.Equal(t, "a.b=1;c.d = 2;flag", l.String())
	assert.Equal(t, "2", l[1].Value())
	assert.Equal(t, "", l[2].Value())
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse(" ; ;"))
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"a=1",
		"tpcitsMatch.cutMatchingChi2=30;other.key=5",
		"x[0]=1;x[1]=1;y=true",
	} {
		assert.Equal(t, s, Parse(s).String())
		assert.Equal(t, Parse(s), Parse(Parse(s).String()))
	}
}

func TestWithoutAndAppend(t *testing.T) {
	t.Parallel()

	l := Parse("tpcitsMatch.cutMatchingChi2=30;other.key=5")
	out := l.Without(func(k string) bool { return k == "tpcitsMatch.cutMatchingChi2" }).
		Append(Pair("tpcitsMatch.cutMatchingChi2", "100"))

	assert.Equal(t, "other.key=5;tpcitsMatch.cutMatchingChi2=100", out.String())
	assert.Equal(t, "tpcitsMatch.cutMatchingChi2=30;other.key=5", l.String(), "input must not change")

	v, ok := out.Get("tpcitsMatch.cutMatchingChi2")
	assert.True(t, ok)
	assert.Equal(t, "100", v)
}

func TestIndexedAndSplitIndex(t *testing.T) {
	t.Parallel()

	f := Indexed("tpcitsMatch.askMinTPCRow", 7, "25")
	assert.Equal(t, "tpcitsMatch.askMinTPCRow[7]=25", f.Text)

	base, idx, ok := SplitIndex(f.Key)
	assert.True(t, ok)
	assert.Equal(t, "tpcitsMatch.askMinTPCRow", base)
	assert.Equal(t, 7, idx)

	for _, k := range []string{"plain.key", "[3]", "a[x]", "a[-1]", "a[1"} {
		_, _, ok := SplitIndex(k)
		assert.False(t, ok, k)
	}
}
