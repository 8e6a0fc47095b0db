package model

// Modality names an input kind a model may accept alongside text.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityFile  Modality = "file"
)

// Capability names an optional model feature. "function_calling" gates tool
// injection per spec.md §3.
const CapabilityFunctionCalling = "function_calling"

// Model describes one callable model across any provider.
type Model struct {
	ID              string
	Name            string
	API             string
	BaseURL         string
	Reasoning       bool
	InputModalities map[Modality]bool
	Cost            CostRate
	ContextWindow   int
	MaxTokens       int
	Headers         map[string]string
	Capabilities    map[string]bool
}

// SupportsModality reports whether m accepts the given input modality.
func (m Model) SupportsModality(mod Modality) bool {
	return m.InputModalities[mod]
}

// HasCapability reports whether m declares the named capability.
func (m Model) HasCapability(name string) bool {
	return m.Capabilities[name]
}

// SupportsTools reports whether m.Capabilities gates tool injection on.
func (m Model) SupportsTools() bool {
	return m.HasCapability(CapabilityFunctionCalling)
}
