package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cases(codenames ...string) []Testcase {
	out := make([]Testcase, len(codenames))
	for i, c := range codenames {
		out[i] = Testcase{Codename: c}
	}
	return out
}

func TestSum(t *testing.T) {
	st, err := New("Sum", "5", cases("1", "2", "3", "4"))
	require.NoError(t, err)
	assert.Equal(t, "Sum", st.Name())
	assert.Equal(t, 20.0, st.MaxScore())
}

func TestSumNoTestcases(t *testing.T) {
	st, err := New("Sum", "5", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, st.MaxScore())
}

func TestSumBadParameters(t *testing.T) {
	_, err := New("Sum", `"five"`, cases("1"))
	assert.Error(t, err)
}

func TestGroupMinWithCounts(t *testing.T) {
	st, err := New("GroupMin", "[[40, 2], [60, 3]]", cases("1", "2", "3", "4", "5"))
	require.NoError(t, err)
	assert.Equal(t, "GroupMin", st.Name())
	assert.Equal(t, 100.0, st.MaxScore())
}

func TestGroupMinWithRegexp(t *testing.T) {
	st, err := New("GroupMin", `[[30, "sample.*"], [70, "secret.*"]]`,
		cases("sample-1", "sample-2", "secret-1", "secret-2", "secret-3"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, st.MaxScore())
}

func TestGroupMinCountPastEnd(t *testing.T) {
	_, err := New("GroupMin", "[[50, 2], [50, 2]]", cases("1", "2", "3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "past the end")
}

func TestGroupMinMalformed(t *testing.T) {
	for _, params := range []string{
		"not json",
		"[[50]]",            // missing selector
		`[["x", 2]]`,        // non-numeric multiplier
		`[[50, "(bad"]]`,    // invalid regexp
		`[[50, [1, 2]]]`,    // selector is neither count nor pattern
	} {
		_, err := New("GroupMin", params, cases("1", "2"))
		assert.Error(t, err, "params %s", params)
	}
}

func TestUnknownScoreType(t *testing.T) {
	_, err := New("GroupMul", "[]", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown score type")
}
