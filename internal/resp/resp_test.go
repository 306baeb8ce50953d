package resp

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWireForms(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want string
	}{
		{"simple", SimpleString("PONG"), "+PONG\r\n"},
		{"error", ErrorString("bad things"), "-ERR bad things\r\n"},
		{"integer", Integer(42), ":42\r\n"},
		{"bulk", Bulk("bar"), "$3\r\nbar\r\n"},
		{"bulk empty", Bulk(""), "$0\r\n\r\n"},
		{"null bulk", NullBulk(), "$-1\r\n"},
		{"null array", NullArray(), "*-1\r\n"},
		{"array", Array(Bulk("a"), Bulk("bb")), "*2\r\n$1\r\na\r\n$2\r\nbb\r\n"},
		{"nested array", Array(Bulk("k"), Array(Bulk("f"), Bulk("v"))), "*2\r\n$1\r\nk\r\n*2\r\n$1\r\nf\r\n$1\r\nv\r\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, string(Encode(tc.v)))
		})
	}
}

func TestDecodeRequestArray(t *testing.T) {
	raw := "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	tokens, err := DecodeRequest(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "foo", "bar"}, tokens)
}

func TestDecodeRequestInlineForms(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("+PING\r\n"))
	tokens, err := DecodeRequest(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, tokens)

	r = bufio.NewReader(strings.NewReader(":7\r\n"))
	tokens, err = DecodeRequest(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, tokens)
}

func TestDecodeRequestRejectsUnknownMarker(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("?garbage\r\n"))
	_, err := DecodeRequest(r)
	assert.Error(t, err)
}

// Frame round-trip: decoding what was just encoded as a request array
// recovers the original bulk-string tokens.
func TestRoundTripBulkStrings(t *testing.T) {
	tokens := []string{"XADD", "stream-key", "1-1", "field", "value with spaces"}

	var raw strings.Builder
	raw.WriteString("*")
	raw.WriteString("5\r\n")
	for _, tok := range tokens {
		raw.WriteString("$")
		raw.WriteString(itoa(len(tok)))
		raw.WriteString("\r\n")
		raw.WriteString(tok)
		raw.WriteString("\r\n")
	}

	got, err := DecodeRequest(bufio.NewReader(strings.NewReader(raw.String())))
	require.NoError(t, err)
	assert.Equal(t, tokens, got)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func BenchmarkEncodeBulk(b *testing.B) {
	for range b.N {
		Encode(Bulk("a test string"))
	}
}

func BenchmarkEncodeArray(b *testing.B) {
	v := Array(Bulk("this"), Bulk("that"), Bulk("and the other"), Bulk("more"))
	for range b.N {
		Encode(v)
	}
}
