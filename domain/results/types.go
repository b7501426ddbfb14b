// Package results holds the tables produced by scoring and testing.
package results

import (
	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/domain/subject"
)

// Score kinds recorded next to each block score
const (
	KindMean = "mean"
	KindPC1  = "PC1"
	KindNA   = "NA"
)

// BlockScore is one row of the long-format score table
type BlockScore struct {
	SubjectID  core.SubjectID    `json:"subject" db:"subject_id"`
	Group      subject.Diagnosis `json:"group" db:"diagnosis"`
	Type       network.BlockType `json:"type" db:"block_type"`
	Block      string            `json:"block" db:"block_name"`
	Score      float64           `json:"score" db:"score"`
	ScoreKind  string            `json:"score_kind" db:"score_kind"`
	AnchorMode string            `json:"anchor_mode,omitempty" db:"anchor_mode"`
}

// GroupSummary holds the finite-value summary of one group's scores
type GroupSummary struct {
	N    int     `json:"n" db:"n"`
	Mean float64 `json:"mean" db:"mean"`
	SD   float64 `json:"sd" db:"sd"`
}

// BlockTest is the ASD-vs-TDC comparison of one block
type BlockTest struct {
	Type        network.BlockType `json:"type" db:"block_type"`
	Block       string            `json:"block" db:"block_name"`
	TDC         GroupSummary      `json:"tdc" db:"-"`
	ASD         GroupSummary      `json:"asd" db:"-"`
	T           float64           `json:"t" db:"t_value"`
	DF          float64           `json:"df" db:"df"`
	P           float64           `json:"p" db:"p_value"`
	PAdj        float64           `json:"p_fdr" db:"p_fdr"`
	Significant bool              `json:"significant" db:"significant"`
}

// EdgeTest is the ASD-vs-TDC comparison of one ROI pair. ROI numbers are
// 1-based as in the atlas.
type EdgeTest struct {
	ROII        int     `json:"roi_i" db:"roi_i"`
	ROIJ        int     `json:"roi_j" db:"roi_j"`
	T           float64 `json:"t" db:"t_value"`
	P           float64 `json:"p_unc" db:"p_value"`
	PAdj        float64 `json:"p_fdr" db:"p_fdr"`
	Significant bool    `json:"significant" db:"significant"`
	NetI        string  `json:"net_i" db:"net_i"`
	NetJ        string  `json:"net_j" db:"net_j"`
	Kind        string  `json:"kind" db:"kind"`
}

// Edge kinds
const (
	EdgeIntra = "intra"
	EdgeInter = "inter"
)

// ROIDegree counts significant edges touching one ROI
type ROIDegree struct {
	ROI     int    `json:"roi"`
	Network string `json:"network"`
	Degree  int    `json:"deg_sig"`
}

// EdgeSummary is the global summary of an edge-level run
type EdgeSummary struct {
	Alpha           float64 `json:"alpha"`
	Method          string  `json:"method"`
	EqualVar        bool    `json:"equal_var"`
	NASD            int     `json:"n_asd"`
	NTDC            int     `json:"n_tdc"`
	NROIs           int     `json:"n_rois"`
	EdgesTested     int     `json:"edges_tested"`
	EdgesSig        int     `json:"edges_significant"`
	PropSignificant float64 `json:"prop_significant"`
}

// NetworkCount summarises significant edges inside one network (intra) or
// between one unordered network pair (inter)
type NetworkCount struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	NEdges      int    `json:"n_edges"`
	NUniqueROIs int    `json:"n_unique_rois"`
}

// ComponentTest is an exploratory ASD-vs-TDC test on one z-scored component
type ComponentTest struct {
	T float64 `json:"t"`
	P float64 `json:"p"`
}

// PCAReport summarises the decomposition of one block
type PCAReport struct {
	Type         network.BlockType `json:"type"`
	Block        string            `json:"block"`
	NEdges       int               `json:"n_edges"`
	NEdgesUsed   int               `json:"n_edges_used"`
	ScoreKind    string            `json:"score_kind"`
	VarExplained []float64         `json:"var_explained"`
	Components   []ComponentTest   `json:"components"`
	Final        ComponentTest     `json:"final"`
}

// Family is a set of tests corrected together for multiple comparisons
type Family string

const (
	FamilyIntra Family = "intra"
	FamilyInter Family = "inter"
	FamilyEdges Family = "edges"
)
