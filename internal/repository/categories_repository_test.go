package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullableEmbedding_Scan(t *testing.T) {
	t.Run("NULL column scans to nil", func(t *testing.T) {
		var emb nullableEmbedding

		err := emb.Scan(nil)

		require.NoError(t, err)
		assert.Nil(t, []float32(emb))
	})

	t.Run("empty buffer scans to nil", func(t *testing.T) {
		var emb nullableEmbedding

		err := emb.Scan([]byte{})

		require.NoError(t, err)
		assert.Nil(t, []float32(emb))
	})

	t.Run("rejects non-byte source", func(t *testing.T) {
		var emb nullableEmbedding

		err := emb.Scan("not bytes")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected []byte")
	})

	t.Run("overwrites previous value on NULL", func(t *testing.T) {
		emb := nullableEmbedding{1, 2, 3}

		err := emb.Scan(nil)

		require.NoError(t, err)
		assert.Nil(t, []float32(emb))
	})
}
