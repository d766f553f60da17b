package reporting

import (
	"sort"

	"smc-lab/internal/smc"
)

// Rows flattens results into one table ordered by time, then kind.
func Rows(res *smc.Results) []Row {
	if res == nil {
		return nil
	}

	var rows []Row
	for _, p := range res.SwingPoints {
		rows = append(rows, Row{
			Kind:      "swing_point",
			Time:      p.Time,
			Type:      string(p.Type),
			Direction: string(p.Swing),
			Level:     "swing",
			Top:       p.Price,
			Bottom:    p.Price,
		})
	}
	for _, s := range res.Structures {
		rows = append(rows, Row{
			Kind:      "structure",
			Time:      s.Time,
			StartTime: s.StartTime,
			Type:      string(s.Type),
			Direction: string(s.Direction),
			Level:     string(s.Level),
			Top:       s.Price,
			Bottom:    s.Price,
		})
	}
	for _, ob := range res.OrderBlocks {
		row := Row{
			Kind:      "order_block",
			Time:      ob.Time,
			Direction: string(ob.Bias),
			Level:     string(ob.Level),
			Top:       ob.High,
			Bottom:    ob.Low,
			Status:    "active",
		}
		if ob.Mitigated {
			row.Status = "mitigated"
			if ob.MitigatedTime != nil {
				row.EndTime = *ob.MitigatedTime
			}
		}
		rows = append(rows, row)
	}
	for _, g := range res.FairValueGaps {
		row := Row{
			Kind:      "fvg",
			Time:      g.Time,
			Direction: string(g.Bias),
			Top:       g.Top,
			Bottom:    g.Bottom,
			Status:    "open",
		}
		if g.Filled {
			row.Status = "filled"
			if g.FilledTime != nil {
				row.EndTime = *g.FilledTime
			}
		}
		rows = append(rows, row)
	}
	for _, e := range res.EqualHighsLows {
		rows = append(rows, Row{
			Kind:      "equal_level",
			Time:      e.Time2,
			StartTime: e.Time1,
			Type:      string(e.Type),
			Top:       e.Price,
			Bottom:    e.Price,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Time != rows[j].Time {
			return rows[i].Time < rows[j].Time
		}
		return kindOrder[rows[i].Kind] < kindOrder[rows[j].Kind]
	})
	return rows
}
