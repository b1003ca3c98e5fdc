package interactive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"Queue=600", "Member=SIP/1001"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Queue": "600", "Member": "SIP/1001"}, params)
}

func TestParseParamsEmpty(t *testing.T) {
	params, err := parseParams(nil)
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestParseParamsValueMayContainEquals(t *testing.T) {
	params, err := parseParams([]string{"Variable=FOO=bar"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Variable": "FOO=bar"}, params)
}

func TestParseParamsRejectsBareWords(t *testing.T) {
	_, err := parseParams([]string{"Queue"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Queue")

	_, err = parseParams([]string{"=600"})
	require.Error(t, err)
}

func TestAgo(t *testing.T) {
	assert.Equal(t, "never", ago(time.Time{}))
	assert.Contains(t, ago(time.Now().Add(-90*time.Second)), "ago")
}
