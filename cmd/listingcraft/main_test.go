package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

// Every constructor the modules demand must be provided somewhere in the
// graph; a module left out of appOptions fails here instead of at boot.
func TestAppGraphResolves(t *testing.T) {
	require.NoError(t, fx.ValidateApp(appOptions()...))
}
