package configstore

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"lmctld/pkg/types"
)

// Defaults applied when the corresponding frontend knob is absent.
const (
	defaultHost            = "127.0.0.1"
	defaultPort            = 8080
	defaultMaxTokensSlider = 13
	defaultContextSlider   = 15
	defaultTemperature     = 0.1
	defaultRepeatPenalty   = 1.2
	defaultThreads         = 0
	defaultGPULayers       = 999
)

// Fixed engine constants not sourced from user input.
const (
	fixedNPredict  = 8192
	fixedKVCache   = "optimized"
	fixedSessionID = "default"
)

// maxSliderExponent bounds 2^s to the int64 range.
const maxSliderExponent = 62

var fixedStop = []string{"<|eot_id|>"}

// BuildStartupParameters resolves the flat frontend knob set into the typed
// parameter struct handed to the engine. Missing fields take the documented
// defaults; malformed numeric or enum fields fail with a configuration error
// naming the offending field. The transform is pure: equal inputs always
// yield equal outputs.
func BuildStartupParameters(fd types.FrontendDefaults) (types.StartupParameters, error) {
	var p types.StartupParameters
	var err error

	if p.Model, err = stringField(fd, "model", ""); err != nil {
		return types.StartupParameters{}, err
	}
	if p.Host, err = stringField(fd, "host", defaultHost); err != nil {
		return types.StartupParameters{}, err
	}
	if p.Port, err = intField(fd, "port", defaultPort); err != nil {
		return types.StartupParameters{}, err
	}

	// Slider integers are exponents: the UI sends 13, the engine needs 2^13.
	maxTokensExp, err := sliderField(fd, "max_tokens", defaultMaxTokensSlider)
	if err != nil {
		return types.StartupParameters{}, err
	}
	contextExp, err := sliderField(fd, "context_size", defaultContextSlider)
	if err != nil {
		return types.StartupParameters{}, err
	}
	p.MaxNewTokens = 1 << uint(maxTokensExp)
	p.ContextSize = 1 << uint(contextExp)

	if p.Temperature, err = floatField(fd, "temperature", defaultTemperature); err != nil {
		return types.StartupParameters{}, err
	}
	if p.RepeatPenalty, err = floatField(fd, "repeat_penalty", defaultRepeatPenalty); err != nil {
		return types.StartupParameters{}, err
	}
	if p.Threads, err = intField(fd, "threads", defaultThreads); err != nil {
		return types.StartupParameters{}, err
	}
	if p.GPULayers, err = intField(fd, "gpu_layers", defaultGPULayers); err != nil {
		return types.StartupParameters{}, err
	}

	mode, err := stringField(fd, "compute_mode", "auto")
	if err != nil {
		return types.StartupParameters{}, err
	}
	switch mode {
	case "", "auto", "cpu", "gpu":
	default:
		return types.StartupParameters{}, configurationError{field: "compute_mode", value: mode}
	}
	// auto leaves both false and delegates detection to the engine.
	p.CPU = mode == "cpu"
	p.GPU = mode == "gpu"

	p.NPredict = fixedNPredict
	p.Stop = append([]string(nil), fixedStop...)
	p.KVCache = fixedKVCache
	p.SessionID = fixedSessionID
	p.SlotID = 0
	p.Remember = true
	p.ServerOnly = true
	return p, nil
}

// sliderField reads an exponent knob and enforces the representable range.
func sliderField(fd types.FrontendDefaults, key string, def int) (int, error) {
	v, err := intField(fd, key, def)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > maxSliderExponent {
		return 0, configurationError{field: key, value: v}
	}
	return v, nil
}

// intField reads an optional integer knob. JSON numbers decode as float64;
// numeric strings from older UI payloads are accepted too. A nil value counts
// as missing.
func intField(fd types.FrontendDefaults, key string, def int) (int, error) {
	raw, ok := fd[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v > math.MaxInt64 {
			return 0, configurationError{field: key, value: raw}
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, configurationError{field: key, value: raw}
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, configurationError{field: key, value: raw}
		}
		return n, nil
	case int:
		return v, nil
	default:
		return 0, configurationError{field: key, value: raw}
	}
}

// floatField reads an optional float knob with the same coercion rules as
// intField.
func floatField(fd types.FrontendDefaults, key string, def float64) (float64, error) {
	raw, ok := fd[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, configurationError{field: key, value: raw}
		}
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, configurationError{field: key, value: raw}
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, configurationError{field: key, value: raw}
		}
		return f, nil
	case int:
		return float64(v), nil
	default:
		return 0, configurationError{field: key, value: raw}
	}
}

// stringField reads an optional string knob; any non-string value is malformed.
func stringField(fd types.FrontendDefaults, key, def string) (string, error) {
	raw, ok := fd[key]
	if !ok || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", configurationError{field: key, value: raw}
	}
	return s, nil
}
