package reporting

import (
	"fmt"
	"strconv"
	"strings"

	"smc-lab/internal/smc"
)

// RenderCSV renders results as one flat CSV table.
func RenderCSV(res *smc.Results) string {
	var sb strings.Builder

	// Header
	sb.WriteString("kind,time,start_time,type,direction,level,top,bottom,status,end_time\n")

	// Rows
	for _, r := range Rows(res) {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%s,%s,%s,%s,%s,%s,%s\n",
			r.Kind,
			r.Time,
			optionalTime(r.StartTime),
			r.Type,
			r.Direction,
			r.Level,
			formatPrice(r.Top),
			formatPrice(r.Bottom),
			r.Status,
			optionalTime(r.EndTime),
		))
	}

	return sb.String()
}

func optionalTime(t int64) string {
	if t == 0 {
		return ""
	}
	return strconv.FormatInt(t, 10)
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
