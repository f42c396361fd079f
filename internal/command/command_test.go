package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noAloha() (int, bool)   { return 0, false }
func alohaAt(i int) func() (int, bool) {
	return func() (int, bool) { return i, true }
}

func TestParseMetamacClearsOverride(t *testing.T) {
	cmd, err := Parse([]byte(`[{"command":"METAMAC"}]`), 3, noAloha)
	require.NoError(t, err)
	assert.Equal(t, Clear, cmd.Kind)
}

func TestParseALOHAResolvesViaCallback(t *testing.T) {
	cmd, err := Parse([]byte(`[{"command":"ALOHA"}]`), 3, alohaAt(2))
	require.NoError(t, err)
	assert.Equal(t, SetOverride, cmd.Kind)
	assert.Equal(t, 2, cmd.ProtocolIndex)
}

func TestParseALOHAErrorsWhenSuiteHasNone(t *testing.T) {
	_, err := Parse([]byte(`[{"command":"ALOHA"}]`), 3, noAloha)
	assert.Error(t, err)
}

func TestParseProtocolNOneIndexed(t *testing.T) {
	cmd, err := Parse([]byte(`[{"command":"Protocol 2"}]`), 3, noAloha)
	require.NoError(t, err)
	assert.Equal(t, SetOverride, cmd.Kind)
	assert.Equal(t, 1, cmd.ProtocolIndex)
}

func TestParseTDMANAcceptedAsAlias(t *testing.T) {
	cmd, err := Parse([]byte(`[{"command":"TDMA 1"}]`), 3, noAloha)
	require.NoError(t, err)
	assert.Equal(t, 0, cmd.ProtocolIndex)
}

func TestParseProtocolOutOfRange(t *testing.T) {
	_, err := Parse([]byte(`[{"command":"Protocol 9"}]`), 3, noAloha)
	assert.Error(t, err)
	_, err = Parse([]byte(`[{"command":"Protocol 0"}]`), 3, noAloha)
	assert.Error(t, err)
}

func TestParseRejectsUnknownCommand(t *testing.T) {
	_, err := Parse([]byte(`[{"command":"BOGUS"}]`), 3, noAloha)
	assert.Error(t, err)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`), 3, noAloha)
	assert.Error(t, err)
}

func TestParseRejectsEmptyArray(t *testing.T) {
	_, err := Parse([]byte(`[]`), 3, noAloha)
	assert.Error(t, err)
}

func TestMailboxLatestOverwritesUndrained(t *testing.T) {
	m := NewMailbox()
	m.Deposit(Command{Kind: SetOverride, ProtocolIndex: 0})
	m.Deposit(Command{Kind: SetOverride, ProtocolIndex: 1})

	cmd, ok := m.Drain()
	require.True(t, ok)
	assert.Equal(t, 1, cmd.ProtocolIndex)

	_, ok = m.Drain()
	assert.False(t, ok, "a drained mailbox has nothing left to give")
}
