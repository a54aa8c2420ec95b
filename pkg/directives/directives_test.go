package directives

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axprotocol/core/pkg/contracts"
)

func seedDirectives(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for family, name := range directiveFiles {
		content := "# " + family + "\nDirective body for " + family + ".\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoadReadsAllFamilies(t *testing.T) {
	dir := seedDirectives(t)
	set := NewLoader().Load(dir)
	assert.Len(t, set, len(directiveFiles))
	assert.Empty(t, set.Missing())
	assert.Contains(t, set["CORE"], "Directive body for CORE")
}

func TestLoadMissingSentinel(t *testing.T) {
	dir := seedDirectives(t)
	require.NoError(t, os.Remove(filepath.Join(dir, directiveFiles["RDL"])))

	set := NewLoader().Load(dir)
	assert.Equal(t, "[Missing: REDTEAM_LAYER.md]", set["RDL"])
	assert.Equal(t, []string{"RDL"}, set.Missing())
}

func TestLoadCaches(t *testing.T) {
	dir := seedDirectives(t)
	l := NewLoader()
	first := l.Load(dir)

	// Edits after the first load are invisible until restart.
	require.NoError(t, os.WriteFile(filepath.Join(dir, directiveFiles["CORE"]), []byte("changed"), 0o644))
	second := l.Load(dir)
	assert.Equal(t, first["CORE"], second["CORE"])
}

func TestSystemForCarriesFullFamilyAndContract(t *testing.T) {
	set := NewLoader().Load(seedDirectives(t))

	sys := SystemFor(contracts.RoleCritic, "You are the Critic.", set)
	assert.True(t, strings.HasPrefix(sys, "You are the Critic."))
	assert.Contains(t, sys, "FULL DIRECTIVE: RDL")
	assert.Contains(t, sys, "Collaboration Contract:")
	assert.Contains(t, sys, "Red-Team Layer (26-28)")
	// Critic carries RDL in full, not ADD.
	assert.NotContains(t, sys, "FULL DIRECTIVE: ADD")
}

func TestTemperaturePerRole(t *testing.T) {
	assert.Equal(t, 0.30, Temperature(contracts.RoleStrategist))
	assert.Equal(t, 0.20, Temperature(contracts.RoleAnalyst))
	assert.Equal(t, 0.65, Temperature(contracts.RoleProducer))
	assert.Equal(t, 0.35, Temperature(contracts.RoleCourier))
	assert.Equal(t, 0.25, Temperature(contracts.RoleCritic))
}
