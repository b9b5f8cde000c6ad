package schema

import _ "embed"

//go:embed catalog.json
var defaultCatalog []byte

// LoadDefault loads the embedded practice-area catalog.
func LoadDefault() (*Store, error) {
	return Load(defaultCatalog)
}
