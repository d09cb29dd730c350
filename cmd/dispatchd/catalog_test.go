package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"water-dispatch-backend/config"
	"water-dispatch-backend/internal/geo"
)

func TestPrintCatalog(t *testing.T) {
	cfg := config.Default()

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	require.NoError(t, printCatalog(cmd, geo.NewCatalogFromConfig(cfg.Dispatch), cfg.Dispatch.MaxRoadDistanceKm))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "reference: "+config.DefaultReference.Address))
	assert.Contains(t, out, "LOCATION")
	assert.Equal(t, len(config.DefaultCandidates), strings.Count(out, "true")+strings.Count(out, "false"))
	assert.Equal(t, 2, strings.Count(out, "false"))
}
