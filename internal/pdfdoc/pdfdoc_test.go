package pdfdoc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInspector_PageCountRejectsGarbage(t *testing.T) {
	_, err := NewInspector().PageCount(bytes.NewReader([]byte("this is not a pdf")))
	assert.Error(t, err)
}

func TestTextSampleRejectsGarbage(t *testing.T) {
	data := []byte("plain text pretending to be a pdf")
	_, err := TextSample(bytes.NewReader(data), int64(len(data)), 100)
	assert.Error(t, err)
}

func TestCollapseSpace(t *testing.T) {
	assert.Equal(t, "Invoice No 42", collapseSpace("  Invoice\n\tNo   42 \n"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, "hé…", truncateRunes("héllo", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 0))
}
