package kwp1281

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpretRPM(t *testing.T) {
	v := MeasuredValue{FormulaID: 0x01, RawA: 0x19, RawB: 0x64}
	got, ok := Interpret(v)
	assert.True(t, ok)
	assert.Equal(t, float64(0x19)*float64(0x64)/4, got)
}

func TestInterpretUnknownFormula(t *testing.T) {
	_, ok := Interpret(MeasuredValue{FormulaID: 0xEE})
	assert.False(t, ok)
}
