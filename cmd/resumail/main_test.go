package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/resumail/resumail/internal/app"
	_ "github.com/resumail/resumail/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}
