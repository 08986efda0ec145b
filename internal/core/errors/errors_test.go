package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecError_Message(t *testing.T) {
	err := Specf("reducers[0].column", "unknown column %q", "amt")
	assert.Equal(t, `reducers[0].column: unknown column "amt"`, err.Error())

	wrapped := AsSpecError("orders", fmt.Errorf("compile: %w", err))
	assert.Equal(t, `pipeline "orders": compile: reducers[0].column: unknown column "amt"`, wrapped.Error())
	assert.True(t, IsSpecError(wrapped))
	assert.False(t, IsSpecError(io.EOF))

	var se *SpecError
	require.True(t, stderrors.As(wrapped, &se))
	assert.Equal(t, "orders", se.Pipeline)
	assert.Equal(t, "reducers[0].column", se.Field)
	assert.Empty(t, err.Pipeline, "original error must not be modified")
}

func TestAsSpecError_KeepsExistingPipeline(t *testing.T) {
	err := &SpecError{Pipeline: "upstream", Field: "source.pipeline", Reason: "dependency cycle"}
	assert.Same(t, err, AsSpecError("downstream", err))

	plain := io.EOF
	assert.Same(t, plain, AsSpecError("orders", plain))

	unnamed := Specf("name", "must not be empty")
	assert.Same(t, unnamed, AsSpecError("", unnamed))
}

func TestSourceError_Unwrap(t *testing.T) {
	err := fmt.Errorf("run: %w", &SourceError{Source: "postgres", Reason: "query failed", Err: io.ErrUnexpectedEOF})

	var se *SourceError
	require.True(t, stderrors.As(err, &se))
	assert.Equal(t, "postgres", se.Source)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "source postgres: query failed")
}

func TestSinkError_CarriesCount(t *testing.T) {
	err := &SinkError{Sink: "csv", Reason: "write failed", RowsEmitted: 3, Err: io.ErrShortWrite}
	assert.Equal(t, "sink csv: write failed after 3 rows: short write", err.Error())
	assert.ErrorIs(t, err, io.ErrShortWrite)
}
