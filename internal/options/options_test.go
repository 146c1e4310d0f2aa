package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type target struct {
	flag  bool
	label string
}

func TestApplyRunsOptionsInOrder(t *testing.T) {
	tgt := &target{}

	err := Apply(tgt,
		NoError(func(c *target) { c.flag = true }),
		New(func(c *target) error {
			c.label = "set"
			return nil
		}),
	)
	require.NoError(t, err)
	require.True(t, tgt.flag)
	require.Equal(t, "set", tgt.label)
}

func TestApplyStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	tgt := &target{}

	err := Apply(tgt,
		New(func(c *target) error { return boom }),
		NoError(func(c *target) { c.flag = true }),
	)
	require.ErrorIs(t, err, boom)
	require.False(t, tgt.flag, "options after a failure must not run")
}

func TestApplyWithNoOptions(t *testing.T) {
	require.NoError(t, Apply(&target{}))
}
