package reporting

import (
	"fmt"
	"strings"
	"time"

	"smc-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	res := r.Results

	// Header
	sb.WriteString(fmt.Sprintf("# SMC Analysis: %s %s\n\n", r.Series.Symbol, r.Series.Interval))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: `%s`", r.RunID))
		if r.Cached {
			sb.WriteString(" (cached)")
		}
		sb.WriteString("\n\n")
	}

	if res == nil {
		sb.WriteString("No results.\n")
		return sb.String()
	}

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Candles | %d |\n", res.CandleCount))
	sb.WriteString(fmt.Sprintf("| Swing Trend | %s |\n", res.Trend(domain.LevelSwing)))
	sb.WriteString(fmt.Sprintf("| Internal Trend | %s |\n", res.Trend(domain.LevelInternal)))
	sb.WriteString(fmt.Sprintf("| Structure Breaks | %d |\n", len(res.Structures)))
	sb.WriteString(fmt.Sprintf("| Active Order Blocks | %d |\n", len(res.ActiveOrderBlocks)))
	sb.WriteString(fmt.Sprintf("| Fair Value Gaps | %d |\n", len(res.FairValueGaps)))
	sb.WriteString(fmt.Sprintf("| Equal Highs/Lows | %d |\n", len(res.EqualHighsLows)))
	if res.Trailing != nil {
		sb.WriteString(fmt.Sprintf("| Range | %s - %s |\n", formatPrice(res.Trailing.Bottom), formatPrice(res.Trailing.Top)))
		sb.WriteString(fmt.Sprintf("| Zone | %s |\n", res.Zone))
	}
	sb.WriteString("\n")

	if res.Insufficient {
		sb.WriteString("**Insufficient data.** Series is shorter than the pivot window; no events produced.\n\n")
	}

	// Data Quality
	if r.Duplicates > 0 || len(r.Gaps) > 0 {
		sb.WriteString("## Data Quality\n\n")
		if r.Duplicates > 0 {
			sb.WriteString(fmt.Sprintf("- %d duplicate candles dropped\n", r.Duplicates))
		}
		for _, g := range r.Gaps {
			sb.WriteString(fmt.Sprintf("- %d missing bars between %d and %d\n", g.Missing, g.After, g.Before))
		}
		sb.WriteString("\n")
	}

	// Structure
	sb.WriteString("## Structure\n\n")
	if len(res.Structures) > 0 {
		sb.WriteString("| Time | Level | Type | Direction | Price | Pivot Time |\n")
		sb.WriteString("|------|-------|------|-----------|-------|------------|\n")
		for _, s := range res.Structures {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %d |\n",
				s.Time, s.Level, s.Type, s.Direction, formatPrice(s.Price), s.StartTime))
		}
	} else {
		sb.WriteString("No structure breaks.\n")
	}
	sb.WriteString("\n")

	// Order Blocks
	sb.WriteString("## Active Order Blocks\n\n")
	if len(res.ActiveOrderBlocks) > 0 {
		sb.WriteString("| Time | Level | Bias | High | Low |\n")
		sb.WriteString("|------|-------|------|------|-----|\n")
		for _, ob := range res.ActiveOrderBlocks {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
				ob.Time, ob.Level, ob.Bias, formatPrice(ob.High), formatPrice(ob.Low)))
		}
	} else {
		sb.WriteString("No active order blocks.\n")
	}
	sb.WriteString("\n")

	// Fair Value Gaps
	sb.WriteString("## Fair Value Gaps\n\n")
	if len(res.FairValueGaps) > 0 {
		sb.WriteString("| Time | Bias | Top | Bottom | Status |\n")
		sb.WriteString("|------|------|-----|--------|--------|\n")
		for _, g := range res.FairValueGaps {
			status := "open"
			if g.Filled && g.FilledTime != nil {
				status = fmt.Sprintf("filled @ %d", *g.FilledTime)
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
				g.Time, g.Bias, formatPrice(g.Top), formatPrice(g.Bottom), status))
		}
	} else {
		sb.WriteString("No fair value gaps.\n")
	}
	sb.WriteString("\n")

	// Equal Highs/Lows
	sb.WriteString("## Equal Highs/Lows\n\n")
	if len(res.EqualHighsLows) > 0 {
		sb.WriteString("| Type | Price | First | Second |\n")
		sb.WriteString("|------|-------|-------|--------|\n")
		for _, e := range res.EqualHighsLows {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d |\n", e.Type, formatPrice(e.Price), e.Time1, e.Time2))
		}
	} else {
		sb.WriteString("No equal highs or lows.\n")
	}
	sb.WriteString("\n")

	// Footer
	if r.Fingerprint != "" {
		sb.WriteString("---\n\n")
		sb.WriteString(fmt.Sprintf("Fingerprint: `%s`\n", r.Fingerprint))
	}

	return sb.String()
}
