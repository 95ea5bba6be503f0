package onchain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAllowlist(t *testing.T, content string) *Guard {
	t.Helper()
	path := filepath.Join(t.TempDir(), "approved-destinations.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return NewGuard(path)
}

func TestGuard_ApprovedDestinationPasses(t *testing.T) {
	g := writeAllowlist(t, `{
		"version": 1,
		"destinations": [
			{"address": "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", "label": "ops", "approvedBy": "alejandro", "approvedAt": "2026-01-10", "ticket": "OPS-41"}
		]
	}`)

	assert.NoError(t, g.AssertApproved("0x2791bca1f2de4661ed88a30c99a7a9449aa84174"))
}

func TestGuard_UnknownDestinationRefused(t *testing.T) {
	g := writeAllowlist(t, `{"version": 1, "destinations": []}`)

	err := g.AssertApproved("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045")
	assert.ErrorContains(t, err, "not approved")
}

func TestGuard_IncompleteEntriesIgnored(t *testing.T) {
	g := writeAllowlist(t, `{
		"version": 1,
		"destinations": [
			{"address": "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045", "label": "", "approvedBy": "alejandro", "ticket": "OPS-1"},
			{"address": "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", "label": "x", "approvedBy": "alejandro", "approvedAt": "2026-01-10"},
			{"address": "not-an-address", "label": "x", "approvedBy": "alejandro", "ticket": "OPS-2"}
		]
	}`)

	entries, err := g.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Error(t, g.AssertApproved("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"))
}

func TestGuard_InvalidAddressInput(t *testing.T) {
	g := writeAllowlist(t, `{"version": 1, "destinations": []}`)
	assert.ErrorContains(t, g.AssertApproved("nope"), "not a valid address")
}

func TestGuard_MissingFile(t *testing.T) {
	g := NewGuard(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, g.AssertApproved("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"))
}

func TestGuard_ApproveCreatesFileAndPersists(t *testing.T) {
	g := NewGuard(filepath.Join(t.TempDir(), "approved-destinations.json"))

	entry := ApprovedDestination{
		Address:    "0x2791bca1f2de4661ed88a30c99a7a9449aa84174",
		Label:      "ops",
		ApprovedBy: "alejandro",
		Ticket:     "OPS-41",
	}
	require.NoError(t, g.Approve(entry))
	assert.NoError(t, g.AssertApproved("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"))

	// Approving twice must not duplicate the entry.
	require.NoError(t, g.Approve(entry))
	entries, err := g.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", entries[0].Address)
	assert.NotEmpty(t, entries[0].ApprovedAt)
}

func TestGuard_ApproveRejectsIncomplete(t *testing.T) {
	g := NewGuard(filepath.Join(t.TempDir(), "approved-destinations.json"))

	err := g.Approve(ApprovedDestination{Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Label: "ops"})
	assert.ErrorContains(t, err, "required")

	err = g.Approve(ApprovedDestination{Address: "nope", Label: "ops", ApprovedBy: "a", Ticket: "T-1"})
	assert.ErrorContains(t, err, "not a valid address")
}
