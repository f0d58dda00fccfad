package resp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleString(t *testing.T) {
	var p Parser
	item, err := p.Decode([]byte("+PONG\r\n"))
	require.NoError(t, err)
	require.Equal(t, KindString, item.Kind)
	require.Equal(t, []byte("PONG"), item.Str)
}

func TestParseBulkStringBinaryTransparent(t *testing.T) {
	var p Parser
	body := []byte("a\r\nb\x00c")
	frame := fmt.Sprintf("$%d\r\n", len(body))
	buf := append([]byte(frame), body...)
	buf = append(buf, '\r', '\n')

	item, err := p.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, KindString, item.Kind)
	require.Equal(t, body, item.Str)
}

func TestParseEmptyBulkString(t *testing.T) {
	var p Parser
	item, err := p.Decode([]byte("$0\r\n\r\n"))
	require.NoError(t, err)
	require.Equal(t, []byte{}, item.Str)
}

func TestParseInteger(t *testing.T) {
	cases := []int64{0, 1, -1, 9223372036854775807, -9223372036854775808}
	for _, v := range cases {
		var p Parser
		item, err := p.Decode([]byte(fmt.Sprintf(":%d\r\n", v)))
		require.NoError(t, err)
		require.Equal(t, KindInteger, item.Kind)
		require.Equal(t, v, item.Int)
	}
}

func TestParseArray(t *testing.T) {
	var p Parser
	item, err := p.Decode([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	require.NoError(t, err)
	require.Equal(t, KindList, item.Kind)
	require.Len(t, item.List, 2)
	require.Equal(t, []byte("GET"), item.List[0].Str)
	require.Equal(t, []byte("foo"), item.List[1].Str)
}

func TestParseNestedArray(t *testing.T) {
	var p Parser
	item, err := p.Decode([]byte("*2\r\n*1\r\n+a\r\n:7\r\n"))
	require.NoError(t, err)
	require.Len(t, item.List, 2)
	require.Equal(t, KindList, item.List[0].Kind)
	require.Equal(t, []byte("a"), item.List[0].List[0].Str)
	require.Equal(t, int64(7), item.List[1].Int)
}

func TestUnknownPrefixIsInvalid(t *testing.T) {
	var p Parser
	_, err := p.Decode([]byte("-ERR nope\r\n"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestTruncatedFrameIsInvalid(t *testing.T) {
	full := []byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	var p Parser
	for n := 0; n < len(full); n++ {
		_, err := p.Decode(full[:n])
		require.ErrorIs(t, err, ErrInvalidInput, "truncation at %d should fail", n)
	}
	_, err := p.Decode(full)
	require.NoError(t, err)
}

func TestArrayClaimingMoreThanAvailableFails(t *testing.T) {
	var p Parser
	_, err := p.Decode([]byte("*2\r\n$3\r\nfoo\r\n"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestArrayCountAboveMaxDecodeLengthIsInvalid(t *testing.T) {
	var p Parser
	_, err := p.Decode([]byte("*999999999999\r\n"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestBulkStringLengthAboveMaxDecodeLengthIsInvalid(t *testing.T) {
	var p Parser
	_, err := p.Decode([]byte("$999999999999\r\nfoo\r\n"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestArrayCountAtMaxDecodeLengthBoundaryIsRejectedCheaply(t *testing.T) {
	var p Parser
	// One past the bound: must fail readLength before any per-element
	// allocation or loop iteration, not time out walking maxDecodeLength+1
	// absent items.
	_, err := p.Decode([]byte(fmt.Sprintf("*%d\r\n", maxDecodeLength+1)))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestReentrantAcrossIndependentBuffers(t *testing.T) {
	var p Parser
	first, err := p.Decode([]byte("+PING\r\n"))
	require.NoError(t, err)
	require.Equal(t, []byte("PING"), first.Str)

	second, err := p.Decode([]byte(":42\r\n"))
	require.NoError(t, err)
	require.Equal(t, int64(42), second.Int)
}
