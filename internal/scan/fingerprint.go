package scan

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/themescan/internal/types"
)

// Fingerprint hashes the asset listing (key, checksum, updated_at) so two
// scans can tell whether the theme changed in between. Order-insensitive.
func Fingerprint(assets []types.Asset) string {
	sorted := make([]types.Asset, len(assets))
	copy(sorted, assets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	h := xxhash.New()
	for _, a := range sorted {
		_, _ = h.WriteString(a.Key)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(a.Checksum)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(a.UpdatedAt)
		_, _ = h.WriteString("\n")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
