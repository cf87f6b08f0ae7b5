package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "", WrapString(""))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"@read", "@report"}, SplitList(" @read, ,@report,"))
	assert.Nil(t, SplitList(""))
}

func TestParseConditions(t *testing.T) {
	where, err := ParseConditions([]string{"method=do_compile", "PN=busybox", "owner="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"method": "do_compile", "PN": "busybox", "owner": ""}, where)

	_, err = ParseConditions([]string{"method"})
	assert.Error(t, err)
	_, err = ParseConditions([]string{"=x"})
	assert.Error(t, err)
}
