package aggregator

import (
	"fmt"
	"strings"

	"abidenet/domain/core"
)

// KeepMode ranks edges for the sparsity mask
type KeepMode string

const (
	KeepAbs KeepMode = "abs"
	KeepPos KeepMode = "pos"
	KeepNeg KeepMode = "neg"
)

// MaskMode decides whether one mask is shared by every subject
type MaskMode string

const (
	MaskGlobal  MaskMode = "global"
	MaskSubject MaskMode = "subject"
	MaskNone    MaskMode = "none"
)

// ScoreMode reduces a block to one value per subject
type ScoreMode string

const (
	ScoreMean ScoreMode = "mean"
	ScorePCA  ScoreMode = "pca"
)

// AnchorMode orients the sign of each principal component
type AnchorMode string

const (
	AnchorSigned AnchorMode = "signed"
	AnchorAbs    AnchorMode = "abs"
	AnchorGroup  AnchorMode = "group"
)

func parseMode[T ~string](kind, s string, allowed ...T) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(s)))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s %q (want one of %v)", core.ErrUnknownOption, kind, s, allowed)
}

func ParseKeepMode(s string) (KeepMode, error) {
	return parseMode("keep mode", s, KeepAbs, KeepPos, KeepNeg)
}

func ParseMaskMode(s string) (MaskMode, error) {
	return parseMode("mask mode", s, MaskGlobal, MaskSubject, MaskNone)
}

func ParseScoreMode(s string) (ScoreMode, error) {
	return parseMode("score mode", s, ScoreMean, ScorePCA)
}

func ParseAnchorMode(s string) (AnchorMode, error) {
	return parseMode("anchor mode", s, AnchorSigned, AnchorAbs, AnchorGroup)
}

// Options is the aggregation policy
type Options struct {
	Sparsity float64
	Keep     KeepMode
	Mask     MaskMode
	Score    ScoreMode
	NPCA     int
	Anchor   AnchorMode
	Report   bool
	Workers  int
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{
		Sparsity: 0.2,
		Keep:     KeepAbs,
		Mask:     MaskGlobal,
		Score:    ScorePCA,
		NPCA:     3,
		Anchor:   AnchorSigned,
		Report:   true,
		Workers:  4,
	}
}

// Masked reports whether a sparsity mask is applied at all
func (o Options) Masked() bool {
	return o.Sparsity > 0 && o.Mask != MaskNone
}

// Validate checks ranges and enum values
func (o Options) Validate() error {
	if o.Sparsity < 0 || o.Sparsity > 1 {
		return core.NewValidationError("sparsity", fmt.Sprintf("%g is outside [0,1]", o.Sparsity))
	}
	if o.NPCA < 1 {
		return core.NewValidationError("n_pca", fmt.Sprintf("%d is below 1", o.NPCA))
	}
	if _, err := ParseKeepMode(string(o.Keep)); err != nil {
		return err
	}
	if _, err := ParseMaskMode(string(o.Mask)); err != nil {
		return err
	}
	if _, err := ParseScoreMode(string(o.Score)); err != nil {
		return err
	}
	if _, err := ParseAnchorMode(string(o.Anchor)); err != nil {
		return err
	}
	return nil
}
