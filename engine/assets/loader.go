package assets

// Loader turns a file on disk into an in-memory asset. The concrete type
// returned depends on the loader.
type Loader interface {
	Load(path string) (interface{}, error)
}

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeShader
	AssetTypeFont
	AssetTypeImage
	AssetTypeSettings
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeShader:
		return "shader"
	case AssetTypeFont:
		return "font"
	case AssetTypeImage:
		return "image"
	case AssetTypeSettings:
		return "settings"
	}
	return "none"
}
