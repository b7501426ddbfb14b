package stattest

import (
	"fmt"
	"strconv"

	"abidenet/domain/results"
)

// GroupOrder documents the sign convention of every t value
const GroupOrder = "ASD_vs_TDC"

// TableHeader is the column order of network_tests.csv
var TableHeader = []string{"type", "Connection", "TDC", "ASD", "t value", "p_FDR", "p-value", "group_order_for_ttest"}

// FormatMeanSD renders a group as signed "mean ± sd"
func FormatMeanSD(g results.GroupSummary, decimals int) string {
	return fmt.Sprintf("%.*f ± %.*f", decimals, g.Mean, decimals, g.SD)
}

// FormatP renders a p-value as "<0.001" or with three decimals
func FormatP(p float64) string {
	if p < 1e-3 {
		return "<0.001"
	}
	return fmt.Sprintf("%.3f", p)
}

// TableRows renders block tests as network_tests.csv rows
func TableRows(tests []results.BlockTest, decimals int) [][]string {
	rows := make([][]string, 0, len(tests))
	for _, bt := range tests {
		rows = append(rows, []string{
			string(bt.Type),
			bt.Block,
			FormatMeanSD(bt.TDC, decimals),
			FormatMeanSD(bt.ASD, decimals),
			strconv.FormatFloat(bt.T, 'g', -1, 64),
			strconv.FormatFloat(bt.PAdj, 'g', -1, 64),
			FormatP(bt.PAdj),
			GroupOrder,
		})
	}
	return rows
}
