package orchestration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axprotocol/core/pkg/contracts"
)

func TestLoadRoleShapesMissingFileIsEmpty(t *testing.T) {
	shapes, err := LoadRoleShapes(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, shapes)
}

func TestLoadRoleShapesParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "role_shapes.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"Courier": {"banned": ["new asset"], "banned_regex": ["P-\\d+ \\(draft\\)"]}
	}`), 0o644))

	shapes, err := LoadRoleShapes(path)
	require.NoError(t, err)
	require.Contains(t, shapes, "Courier")
	assert.Equal(t, []string{"new asset"}, shapes["Courier"].Banned)
}

func TestLoadRoleShapesBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "role_shapes.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := LoadRoleShapes(path)
	require.Error(t, err)
}

func TestViolationMatchesPhraseCaseInsensitive(t *testing.T) {
	shapes := RoleShapes{"Producer": {Banned: []string{"Delivery Schedule"}}}
	hit := shapes.Violation(contracts.RoleProducer, "here is THE DELIVERY SCHEDULE for monday")
	assert.Equal(t, "Delivery Schedule", hit)
}

func TestViolationMatchesRegex(t *testing.T) {
	shapes := RoleShapes{"Courier": {BannedRegex: []string{`p-\d+ \(draft\)`}}}
	hit := shapes.Violation(contracts.RoleCourier, "schedule P-7 (draft) for tuesday")
	assert.NotEmpty(t, hit)
}

func TestViolationNoPolicyForRole(t *testing.T) {
	shapes := RoleShapes{"Producer": {Banned: []string{"schedule"}}}
	assert.Empty(t, shapes.Violation(contracts.RoleCritic, "a schedule mention"))
}

func TestViolationSkipsInvalidRegex(t *testing.T) {
	shapes := RoleShapes{"Analyst": {BannedRegex: []string{"("}}}
	assert.Empty(t, shapes.Violation(contracts.RoleAnalyst, "any text"))
}

func TestViolationLowercaseRoleKey(t *testing.T) {
	shapes := RoleShapes{"courier": {Banned: []string{"invent"}}}
	assert.Equal(t, "invent", shapes.Violation(contracts.RoleCourier, "do not invent assets"))
}
