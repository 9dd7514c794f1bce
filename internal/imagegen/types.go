package imagegen

// Brief describes the creative intent for an instruction-driven edit.
type Brief struct {
	Subject      string   `json:"subject"`
	Style        string   `json:"style"`
	Background   string   `json:"background"`
	Instructions string   `json:"instructions"`
	Gemstone     string   `json:"gemstone"`
	Metal        string   `json:"metal"`
	Finish       string   `json:"finish"`
	Lighting     string   `json:"lighting"`
	AspectRatio  string   `json:"aspect_ratio"`
	References   []string `json:"references"`
}

// Focus selects which jewelry-specific sentence leads the instruction.
type Focus int

const (
	FocusGeneral Focus = iota
	FocusGemstone
	FocusMetalColor
	FocusMetalPolish
	FocusNaturalLight
)
