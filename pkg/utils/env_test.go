package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnv(t *testing.T) {
	t.Setenv("MAESTRO_TEST_STR", "value")
	require.Equal(t, "value", Env("MAESTRO_TEST_STR", "fallback"))
	require.Equal(t, "fallback", Env("MAESTRO_TEST_STR_UNSET", "fallback"))
}

func TestEnvInt(t *testing.T) {
	t.Setenv("MAESTRO_TEST_INT", "42")
	require.Equal(t, 42, EnvInt("MAESTRO_TEST_INT", 7))
	require.Equal(t, 7, EnvInt("MAESTRO_TEST_INT_UNSET", 7))

	t.Setenv("MAESTRO_TEST_INT_BAD", "not a number")
	require.Equal(t, 7, EnvInt("MAESTRO_TEST_INT_BAD", 7))
}

func TestEnvBool(t *testing.T) {
	t.Setenv("MAESTRO_TEST_BOOL", "true")
	require.True(t, EnvBool("MAESTRO_TEST_BOOL", false))

	t.Setenv("MAESTRO_TEST_BOOL", "0")
	require.False(t, EnvBool("MAESTRO_TEST_BOOL", true))

	require.True(t, EnvBool("MAESTRO_TEST_BOOL_UNSET", true))
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("MAESTRO_TEST_DUR", "250ms")
	require.Equal(t, 250*time.Millisecond, EnvDuration("MAESTRO_TEST_DUR", time.Second))

	require.Equal(t, time.Second, EnvDuration("MAESTRO_TEST_DUR_UNSET", time.Second))

	t.Setenv("MAESTRO_TEST_DUR_BAD", "soon")
	require.Equal(t, time.Second, EnvDuration("MAESTRO_TEST_DUR_BAD", time.Second))

	// zero and negative values fall back: the knobs this feeds treat
	// them as unset
	t.Setenv("MAESTRO_TEST_DUR_NEG", "-5s")
	require.Equal(t, time.Second, EnvDuration("MAESTRO_TEST_DUR_NEG", time.Second))
}
