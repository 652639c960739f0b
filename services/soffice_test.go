package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSofficeRunner_DefaultBinary(t *testing.T) {
	t.Parallel()

	r := NewSofficeRunner("")
	assert.Equal(t, "soffice", r.binary)
}

func TestSofficeRunner_MissingBinary(t *testing.T) {
	t.Parallel()

	r := NewSofficeRunner("definitely-not-a-converter-7f3a")

	assert.False(t, r.Available())

	_, err := r.DocxToHTML(context.Background(), []byte("PK"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soffice failed")
}
