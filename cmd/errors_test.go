package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	require.NoError(t, exitError(0))

	var ee *ExitCodeError
	require.True(t, errors.As(exitError(3), &ee))
	require.Equal(t, 3, ee.Code)
	require.Equal(t, "exit status 3", ee.Error())

	require.True(t, errors.As(exitError(-9), &ee))
	require.Equal(t, 137, ee.Code)
}
