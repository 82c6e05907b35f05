package audit

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToken = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestTrail_BuffersUntilFlush(t *testing.T) {
	sink := NewMemorySink()
	trail := NewTrail(sink)

	trail.Add(testToken, "check #%d is %v", 1, true)
	trail.Add(testToken, "accepted")
	assert.Empty(t, sink.Blocks)

	trail.Flush(testToken)

	require.Len(t, sink.Blocks[testToken], 2)
	assert.Equal(t, "check #1 is true", sink.Blocks[testToken][0].Line)
	assert.Equal(t, "accepted", sink.Blocks[testToken][1].Line)
}

func TestTrail_SharedTraceIDPerToken(t *testing.T) {
	sink := NewMemorySink()
	trail := NewTrail(sink)
	other := common.HexToAddress("0xbb")

	trail.Add(testToken, "one")
	trail.Add(testToken, "two")
	trail.Add(other, "three")
	trail.Flush(testToken)
	trail.Flush(other)

	entries := sink.Blocks[testToken]
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].TraceID, entries[1].TraceID)
	assert.NotEqual(t, entries[0].TraceID, sink.Blocks[other][0].TraceID)
}

func TestTrail_FlushClearsBuffer(t *testing.T) {
	sink := NewMemorySink()
	trail := NewTrail(sink)

	trail.Add(testToken, "one")
	trail.Flush(testToken)
	trail.Flush(testToken)

	assert.Len(t, sink.Blocks[testToken], 1)
}

func TestTrail_NilTrailAndNilSinkAreSafe(t *testing.T) {
	var nilTrail *Trail
	nilTrail.Add(testToken, "dropped")
	nilTrail.Flush(testToken)

	disabled := NewTrail(nil)
	disabled.Add(testToken, "dropped")
	disabled.Flush(testToken)
}
