// Package network describes the ROI-to-network lookup and the intra/inter
// blocks derived from it.
package network

import (
	"fmt"
	"sort"

	"abidenet/domain/core"
)

// Unknown labels ROIs the atlas does not assign to any network. They never
// take part in a block.
const Unknown = "Unknown"

var abbreviations = map[string]string{
	"Default Mode":                 "DMN",
	"Dorsal Attention":             "DAN",
	"Frontoparietal Control":       "FPN",
	"Limbic":                       "LIM",
	"Salience / Ventral Attention": "SAL",
	"Somatomotor":                  "SMN",
	"Visual":                       "VIS",
}

// Short returns the conventional abbreviation of a Yeo-7 network name,
// or the name itself when none exists.
func Short(name string) string {
	if s, ok := abbreviations[name]; ok {
		return s
	}
	return name
}

// Mapping assigns one network label per ROI; position i is ROI i+1.
type Mapping struct {
	Labels []string
}

// NewMapping builds a mapping for nROIs from 1-based assignments. ROIs absent
// from assign, or with an empty label, become Unknown. Indices outside
// 1..nROIs are rejected.
func NewMapping(nROIs int, assign map[int]string) (*Mapping, error) {
	labels := make([]string, nROIs)
	for i := range labels {
		labels[i] = Unknown
	}
	for roi, label := range assign {
		if roi < 1 || roi > nROIs {
			return nil, fmt.Errorf("%w: ROI %d outside 1..%d", core.ErrInvalidMapping, roi, nROIs)
		}
		if label != "" {
			labels[roi-1] = label
		}
	}
	return &Mapping{Labels: labels}, nil
}

// ROIs returns the number of ROIs covered
func (m *Mapping) ROIs() int {
	return len(m.Labels)
}

// Label returns the label of a 0-based ROI index
func (m *Mapping) Label(roi int) string {
	if roi < 0 || roi >= len(m.Labels) {
		return Unknown
	}
	return m.Labels[roi]
}

// Networks returns the sorted distinct labels, Unknown excluded
func (m *Mapping) Networks() []string {
	seen := make(map[string]bool)
	var nets []string
	for _, l := range m.Labels {
		if l == Unknown || seen[l] {
			continue
		}
		seen[l] = true
		nets = append(nets, l)
	}
	sort.Strings(nets)
	return nets
}

// Members returns the 0-based ROI indices per network, in ascending order
func (m *Mapping) Members() map[string][]int {
	out := make(map[string][]int)
	for i, l := range m.Labels {
		if l == Unknown {
			continue
		}
		out[l] = append(out[l], i)
	}
	return out
}
