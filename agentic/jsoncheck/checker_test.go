package jsoncheck_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/goadesign/agentic-core/agentic/jsoncheck"
)

func TestCheckerValidAfterFinalBrace(t *testing.T) {
	c := jsoncheck.New()
	c.Append(`{"path":`)
	assert.False(t, c.IsValid())
	c.Append(`"a.txt"`)
	assert.False(t, c.IsValid())
	c.Append(`}`)
	assert.True(t, c.IsValid())
}

func TestCheckerAnyChunking(t *testing.T) {
	doc := `{"a":{"b":"brace } and quote \" inside a string"},"c":1}`
	for chunkSize := 1; chunkSize <= len(doc); chunkSize++ {
		c := jsoncheck.New()
		validCount := 0
		for i := 0; i < len(doc); i += chunkSize {
			end := min(i+chunkSize, len(doc))
			c.Append(doc[i:end])
			if c.IsValid() {
				validCount++
			}
		}
		assert.Equal(t, 1, validCount, "chunk size %d", chunkSize)
		assert.Equal(t, doc, c.Buffer())
	}
}

// TestCheckerChunkingIsIdempotentProperty verifies that feeding a balanced
// JSON document through a Checker becomes valid exactly once, regardless of
// how the document is sliced into fragments.
func TestCheckerChunkingIsIdempotentProperty(t *testing.T) {
	doc := `{"a":{"b":"brace } and quote \" inside a string"},"c":1,"d":[1,2,3]}`

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("any chunk size reaches valid exactly once and preserves the buffer", prop.ForAll(
		func(chunkSize int) bool {
			c := jsoncheck.New()
			validCount := 0
			for i := 0; i < len(doc); i += chunkSize {
				end := min(i+chunkSize, len(doc))
				c.Append(doc[i:end])
				if c.IsValid() {
					validCount++
				}
			}
			return validCount == 1 && c.Buffer() == doc
		},
		gen.IntRange(1, len(doc)),
	))

	properties.TestingRun(t)
}

func TestCheckerRejectsNonObjectPrefix(t *testing.T) {
	c := jsoncheck.New()
	c.Append(`"just a string"`)
	assert.False(t, c.IsValid())
}

func TestCheckerReset(t *testing.T) {
	c := jsoncheck.New()
	c.Append(`{}`)
	assert.True(t, c.IsValid())
	c.Reset()
	assert.False(t, c.IsValid())
	assert.Equal(t, "", c.Buffer())
}
