package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryKeyIgnoresCaseAndSpacing(t *testing.T) {
	assert.Equal(t, QueryKey("How many  developers in IT?"), QueryKey("  how many developers\tin it? "))
	assert.NotEqual(t, QueryKey("top salary"), QueryKey("lowest salary"))
	assert.Len(t, HashString("x"), 64)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "", NormalizeQuery("   "))
	assert.Equal(t, "show me directors", NormalizeQuery("Show  me\nDirectors"))
}
