package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imgajeed76/gridsync/internal/ui/styles"
)

func TestSpinnerWithoutTTY(t *testing.T) {
	styles.SetNoColor(true)
	defer styles.SetNoColor(false)

	var buf bytes.Buffer
	s := NewSpinnerTo(&buf, "Loading equipment", false)
	s.Start()
	s.Success("25 rows")
	s.Stop()

	assert.Equal(t, "Loading equipment...\n+ 25 rows\n", buf.String())
}
