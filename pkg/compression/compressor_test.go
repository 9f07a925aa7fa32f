package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte(`{"id":1,"name":"relay","tags":["a","b"]}`+"\n"), 200)

	for _, alg := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		for _, level := range []Level{Fastest, Default, Best} {
			t.Run(string(alg), func(t *testing.T) {
				compressed, err := Compress(alg, level, original)
				require.NoError(t, err)
				if alg != None {
					assert.Less(t, len(compressed), len(original))
				}

				out, err := Decompress(alg, compressed)
				require.NoError(t, err)
				assert.Equal(t, original, out)
			})
		}
	}
}

func TestParse(t *testing.T) {
	a, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, None, a)

	a, err = Parse(" ZSTD ")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)

	_, err = Parse("brotli")
	assert.Error(t, err)
}

func TestExtensionAndEncoding(t *testing.T) {
	assert.Equal(t, ".gz", Extension(Gzip))
	assert.Equal(t, ".zst", Extension(Zstd))
	assert.Equal(t, "", Extension(None))
	assert.Equal(t, "gzip", ContentEncoding(Gzip))
	assert.Equal(t, "", ContentEncoding(LZ4))
	assert.Equal(t, Best, ParseLevel("best"))
	assert.Equal(t, Default, ParseLevel("unknown"))
}
