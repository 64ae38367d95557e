package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunFlags(t *testing.T) {
	all, unit := newAllCmd(), newUnitCmd()

	for _, name := range []string{"kind", "reset-log", "tag", "max-retries"} {
		assert.NotNil(t, all.Flags().Lookup(name), "all --%s", name)
	}
	for _, name := range []string{"kind", "reset-log", "tag", "outcode"} {
		assert.NotNil(t, unit.Flags().Lookup(name), "unit --%s", name)
	}
	assert.Nil(t, unit.Flags().Lookup("max-retries"), "a single attempt takes no retry count")
}

func TestAllCmdParsesTags(t *testing.T) {
	cmd := newAllCmd()
	err := cmd.Flags().Parse([]string{"--tag", "batch=nightly", "--tag", "host=a1", "--max-retries", "5"})
	assert.NoError(t, err)

	tags, err := cmd.Flags().GetStringToString("tag")
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"batch": "nightly", "host": "a1"}, tags)
	retries, err := cmd.Flags().GetInt("max-retries")
	assert.NoError(t, err)
	assert.Equal(t, 5, retries)
}
