package ioutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLimited(t *testing.T) {
	t.Run("reads content up to limit", func(t *testing.T) {
		assert.Equal(t, `{"error":{"status":401}}`, ReadLimited(strings.NewReader(`{"error":{"status":401}}`), 1024))
	})

	t.Run("truncates at limit", func(t *testing.T) {
		assert.Equal(t, "Bad", ReadLimited(strings.NewReader("Bad gateway"), 3))
	})

	t.Run("empty reader", func(t *testing.T) {
		assert.Equal(t, "", ReadLimited(strings.NewReader(""), 1024))
	})

	t.Run("read error returns description", func(t *testing.T) {
		r := &failingReader{err: fmt.Errorf("connection reset")}
		assert.Equal(t, "<unreadable: connection reset>", ReadLimited(r, 1024))
	})
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		AccessToken string `json:"access_token"`
	}

	require.NoError(t, DecodeJSON(strings.NewReader(`{"access_token":"T"}`), 1024, &v))
	assert.Equal(t, "T", v.AccessToken)

	err := DecodeJSON(strings.NewReader(`{"access_token":"T"}`), 10, &v)
	assert.ErrorContains(t, err, "decoding response")

	err = DecodeJSON(&failingReader{err: fmt.Errorf("connection reset")}, 1024, &v)
	assert.ErrorContains(t, err, "connection reset")
}

type failingReader struct {
	err error
}

func (r *failingReader) Read(_ []byte) (int, error) {
	return 0, r.err
}
