package prompt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleAcknowledge(t *testing.T) {
	var out bytes.Buffer
	c := &Console{In: strings.NewReader("\n"), Out: &out}

	require.NoError(t, c.Acknowledge("please log in"))
	assert.Contains(t, out.String(), "please log in")
	assert.Contains(t, out.String(), "Press Enter")
}

func TestConsoleAcknowledgeClosedInput(t *testing.T) {
	var out bytes.Buffer
	c := &Console{In: strings.NewReader(""), Out: &out}

	assert.Error(t, c.Acknowledge("anyone there?"))
}

func TestAutoContinue(t *testing.T) {
	a := &AutoContinue{}

	require.NoError(t, a.Acknowledge("first"))
	require.NoError(t, a.Acknowledge("second"))
	assert.Equal(t, []string{"first", "second"}, a.Messages)
}
