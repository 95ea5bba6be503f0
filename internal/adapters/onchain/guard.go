package onchain

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ApprovedDestination is one manually vetted withdrawal address. Entries
// missing any field are treated as not approved.
type ApprovedDestination struct {
	Address    string `json:"address"`
	Label      string `json:"label"`
	ApprovedBy string `json:"approvedBy"`
	ApprovedAt string `json:"approvedAt"`
	Ticket     string `json:"ticket"`
}

type allowlistFile struct {
	Version      int                   `json:"version"`
	Destinations []ApprovedDestination `json:"destinations"`
}

// Guard validates fund destinations against a hand-maintained allowlist
// file. The file is re-read on every check so additions do not require a
// restart.
type Guard struct {
	path string
}

func NewGuard(path string) *Guard {
	return &Guard{path: path}
}

// Load returns the valid allowlist entries, dropping incomplete ones.
func (g *Guard) Load() ([]ApprovedDestination, error) {
	raw, err := os.ReadFile(g.path)
	if err != nil {
		return nil, fmt.Errorf("guard: read %s: %w", g.path, err)
	}

	var file allowlistFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("guard: parse %s: %w", g.path, err)
	}

	out := make([]ApprovedDestination, 0, len(file.Destinations))
	for _, d := range file.Destinations {
		if d.Address == "" || d.Label == "" || d.ApprovedBy == "" || d.Ticket == "" {
			continue
		}
		if !common.IsHexAddress(d.Address) {
			continue
		}
		d.Address = common.HexToAddress(d.Address).Hex()
		out = append(out, d)
	}
	return out, nil
}

// Approve appends a vetted destination to the allowlist file, creating the
// file if it does not exist. Re-approving an existing address is a no-op.
func (g *Guard) Approve(entry ApprovedDestination) error {
	if entry.Label == "" || entry.ApprovedBy == "" || entry.Ticket == "" {
		return fmt.Errorf("guard: label, approvedBy and ticket are required")
	}
	if !common.IsHexAddress(entry.Address) {
		return fmt.Errorf("guard: %q is not a valid address", entry.Address)
	}
	entry.Address = common.HexToAddress(entry.Address).Hex()
	if entry.ApprovedAt == "" {
		entry.ApprovedAt = time.Now().UTC().Format(time.RFC3339)
	}

	file := allowlistFile{Version: 1}
	if raw, err := os.ReadFile(g.path); err == nil {
		if err := json.Unmarshal(raw, &file); err != nil {
			return fmt.Errorf("guard: parse %s: %w", g.path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("guard: read %s: %w", g.path, err)
	}

	for _, d := range file.Destinations {
		if strings.EqualFold(d.Address, entry.Address) {
			return nil
		}
	}
	file.Destinations = append(file.Destinations, entry)

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("guard: encode allowlist: %w", err)
	}
	if err := os.WriteFile(g.path, raw, 0o600); err != nil {
		return fmt.Errorf("guard: write %s: %w", g.path, err)
	}
	return nil
}

// AssertApproved returns an error unless address is on the allowlist.
func (g *Guard) AssertApproved(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("guard: %q is not a valid address", address)
	}
	normalized := common.HexToAddress(address).Hex()

	entries, err := g.Load()
	if err != nil {
		return err
	}
	for _, d := range entries {
		if strings.EqualFold(d.Address, normalized) {
			return nil
		}
	}
	return fmt.Errorf("guard: destination %s is not approved", normalized)
}
