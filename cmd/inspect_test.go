package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectInput(t *testing.T) {
	input := writeFile(t, "items.csv", "Account,Label\n4417-22, Riverside Water \n,skipped\n9001,Metro Gas\n")

	out, err := executeCommand(t, nil, "inspect-input", "--input", input)
	require.NoError(t, err)

	assert.Contains(t, out, "ROW")
	assert.Contains(t, out, "EXPECTED LABEL")
	assert.Regexp(t, `2\s+4417-22\s+Riverside Water`, out)
	assert.Regexp(t, `4\s+9001\s+Metro Gas`, out)
	assert.Contains(t, out, "2 work items in "+input)
}

func TestInspectInput_UnsupportedFormat(t *testing.T) {
	input := writeFile(t, "items.txt", "nope")

	_, err := executeCommand(t, nil, "inspect-input", "-i", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load work items")
}
