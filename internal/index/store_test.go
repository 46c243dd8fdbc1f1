package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnsafeNames(t *testing.T) {
	for _, name := range []string{"", "1index", "Index", "my-index", `x"; DROP TABLE y; --`, "a b"} {
		_, err := New(nil, name)
		assert.Error(t, err, "name %q should be rejected", name)
	}

	for _, name := range []string{"regulations", "udcpr_rag_index", "v2"} {
		s, err := New(nil, name)
		require.NoError(t, err, "name %q should be accepted", name)
		assert.Equal(t, name, s.name)
	}
}
