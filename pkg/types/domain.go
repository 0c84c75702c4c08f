package types

// ModelEntry describes one model listed in the configuration document.
type ModelEntry struct {
	// File name of the model inside its configured directory.
	// example: llama-3.1-8b-q4_k_m.gguf
	FileName string `json:"file_name" example:"llama-3.1-8b-q4_k_m.gguf"`
	// Human-friendly label shown in place of the file name.
	// example: Llama 3.1 8B (Q4)
	Nickname string `json:"nickname,omitempty" example:"Llama 3.1 8B (Q4)"`
	// Parameter count in billions.
	// example: 8
	ParametersBillions float64 `json:"parameters_billions,omitempty" example:"8"`
}

// ModelDirectories holds the directories scanned for model files, one per
// model kind.
type ModelDirectories struct {
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

// FrontendDefaults is the flat set of user-facing knobs persisted in the
// configuration document. Values are kept as decoded JSON (numbers, numeric
// strings, enum strings) because the UI is free-form about how it sends them;
// typed extraction and validation happen in configstore.BuildStartupParameters.
type FrontendDefaults map[string]any

// ConfigDocument is the full persisted configuration. It is read in full on
// every control request and written back in full on every mutation,
// last-writer-wins.
type ConfigDocument struct {
	ModelDirectories ModelDirectories `json:"model_directories"`
	LanguageModels   []ModelEntry     `json:"language_models"`
	VoiceModels      []ModelEntry     `json:"voice_models"`
	FrontendDefaults FrontendDefaults `json:"frontend_defaults"`
}

// StartupParameters is the fully-resolved, typed parameter set passed to the
// engine at construction time. Built once per start attempt and not mutated
// afterwards.
type StartupParameters struct {
	// Model file name as stored in the configuration document.
	Model string
	// Resolved path to the model file on disk.
	ModelPath string
	Host      string
	Port      int
	// Hard generation cap, independent of the UI slider.
	NPredict int
	// 2^maxTokensSlider.
	MaxNewTokens int
	// 2^contextSizeSlider.
	ContextSize   int
	Temperature   float64
	RepeatPenalty float64
	// 0 lets the engine auto-detect.
	Threads   int
	GPULayers int
	// CPU and GPU reflect the compute mode; both false means auto-detect.
	CPU bool
	GPU bool
	// Stop sequences terminating generation.
	Stop []string
	// KV cache strategy identifier.
	KVCache   string
	SessionID string
	SlotID    int
	Remember  bool
	// Always true on this control path: the engine runs as a server, never
	// interactively.
	ServerOnly bool
}
