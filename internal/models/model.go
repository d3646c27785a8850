package models

import (
	"regexp"
	"strconv"
	"strings"
)

// Model describes a selectable inference target.
type Model struct {
	Name        string    `json:"name" yaml:"name"`
	DisplayName string    `json:"display_name" yaml:"displayName"`
	SizeClass   SizeClass `json:"size" yaml:"size"`
	Description string    `json:"description" yaml:"description"`
	IsActive    bool      `json:"is_active" yaml:"isActive"`
}

// SizeClass is a coarse parameter-count bucket used only for labeling models in the UI.
type SizeClass string

const (
	SizeClass1_5B SizeClass = "1.5b"
	SizeClass8B   SizeClass = "8b"
	SizeClass14B  SizeClass = "14b"
	SizeClass32B  SizeClass = "32b"
)

// SizeInfo is the display metadata of a SizeClass.
type SizeInfo struct {
	Label       string
	Description string
}

var sizeInfos = map[SizeClass]SizeInfo{
	SizeClass1_5B: {Label: "Fast", Description: "Quick responses, lower resource usage"},
	SizeClass8B:   {Label: "Balanced", Description: "Good balance of speed and capability"},
	SizeClass14B:  {Label: "Smart", Description: "Enhanced reasoning and knowledge"},
	SizeClass32B:  {Label: "Powerful", Description: "Maximum capability and performance"},
}

// Info returns the display metadata of s. Unknown classes are labeled like SizeClass8B.
func (s SizeClass) Info() SizeInfo {
	if info, ok := sizeInfos[s]; ok {
		return info
	}
	return sizeInfos[SizeClass8B]
}

var sizeTagPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*b\b`)

// ClassifySize buckets a model into a SizeClass. It looks for a parameter count such as "14b" in the
// model tag (e.g. "deepseek-r1:14b") and falls back to parameterSize as reported by the backend
// (e.g. "8.0B"). Counts are rounded to the nearest bucket; anything unparseable is SizeClass8B.
func ClassifySize(name, parameterSize string) SizeClass {
	for _, candidate := range []string{tagOf(name), parameterSize} {
		m := sizeTagPattern.FindStringSubmatch(candidate)
		if m == nil {
			continue
		}
		billions, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return bucketOf(billions)
	}
	return SizeClass8B
}

func tagOf(name string) string {
	if i := strings.LastIndex(name, ":"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func bucketOf(billions float64) SizeClass {
	switch {
	case billions < 4:
		return SizeClass1_5B
	case billions < 11:
		return SizeClass8B
	case billions < 23:
		return SizeClass14B
	default:
		return SizeClass32B
	}
}

// DefaultModels is the built-in model list used when the backend cannot list its models, so the UI
// remains usable offline.
func DefaultModels() []Model {
	return []Model{
		{
			Name:        "deepseek-r1:1.5b",
			DisplayName: "DeepSeek R1 1.5B",
			SizeClass:   SizeClass1_5B,
			Description: "Fast and efficient",
			IsActive:    true,
		},
		{
			Name:        "deepseek-r1:8b",
			DisplayName: "DeepSeek R1 8B",
			SizeClass:   SizeClass8B,
			Description: "Balanced performance",
			IsActive:    true,
		},
	}
}
