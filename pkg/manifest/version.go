package manifest

import (
	"fmt"
	"regexp"
	"strconv"
)

// Generation is a discrete version family of the manifest document format.
type Generation int

// Boundary maps a manifest generation to the upstream release family that
// introduced it.
type Boundary struct {
	Generation Generation
	Release    string
}

// generationTable lists supported generations, oldest first. One row per
// upstream release family.
var generationTable = []Boundary{
	{Generation: 4, Release: "1.0"},
	{Generation: 5, Release: "1.1"},
	{Generation: 6, Release: "1.2"},
	{Generation: 7, Release: "1.3"},
	{Generation: 8, Release: "1.4"},
	{Generation: 9, Release: "1.5"},
}

const schemaURLFormat = "https://schemas.getdbt.com/dbt/manifest/v%d.json"

// versionPattern matches the trailing "vN" of a schema URL or a bare "vN".
var versionPattern = regexp.MustCompile(`(?:^|/)v(\d+)(?:\.json)?$`)

// OldestGeneration returns the oldest generation the codec can upgrade from.
func OldestGeneration() Generation {
	return generationTable[0].Generation
}

// LatestGeneration returns the newest generation known to this build.
func LatestGeneration() Generation {
	return generationTable[len(generationTable)-1].Generation
}

// Generations returns the boundary table in order.
func Generations() []Boundary {
	out := make([]Boundary, len(generationTable))
	copy(out, generationTable)
	return out
}

// ReleaseFor returns the upstream release family of g.
func ReleaseFor(g Generation) (string, bool) {
	for _, b := range generationTable {
		if b.Generation == g {
			return b.Release, true
		}
	}
	return "", false
}

// SchemaURL returns the canonical schema version string of g.
func (g Generation) SchemaURL() string {
	return fmt.Sprintf(schemaURLFormat, int(g))
}

// String returns the short "vN" form.
func (g Generation) String() string {
	return "v" + strconv.Itoa(int(g))
}

// parseGeneration extracts the generation number from a schema version string.
// The number is not range checked.
func parseGeneration(version string) (Generation, bool) {
	m := versionPattern.FindStringSubmatch(version)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return Generation(n), true
}
