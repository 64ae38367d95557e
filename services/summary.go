package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode"

	"outcode-retriever/models"
	"outcode-retriever/utils"
)

type SummaryService struct {
	logger *utils.Logger
}

func NewSummaryService(logger *utils.Logger) *SummaryService {
	return &SummaryService{logger: logger}
}

// Generate aggregates unit outcomes into a report. Run identity and timing
// are left for the caller to fill in.
func (s *SummaryService) Generate(outcomes []models.UnitOutcome) *models.RunReport {
	report := &models.RunReport{
		StoredByRegion: make(map[string]int),
		Outcomes:       outcomes,
	}
	report.Units = len(outcomes)

	var stored []models.UnitOutcome
	for _, o := range outcomes {
		if !o.Success {
			report.GaveUp++
			continue
		}
		report.Succeeded++
		if o.NumRetries > 0 {
			report.Recovered++
		}
		report.RecordsStored += o.Stored
		if o.Stored > 0 {
			report.StoredByRegion[Region(o.Outcode.Code)] += o.Stored
			stored = append(stored, o)
		}
	}

	sort.SliceStable(stored, func(i, j int) bool {
		return stored[i].Stored > stored[j].Stored
	})
	if len(stored) > 5 {
		stored = stored[:5]
	}
	report.TopUnits = stored

	if s.logger != nil {
		s.logger.Debug("[summary] %d units, %d succeeded, %d gave up",
			report.Units, report.Succeeded, report.GaveUp)
	}
	return report
}

// Region returns the postcode area of an outcode: its leading letters.
func Region(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	end := strings.IndexFunc(code, func(r rune) bool { return !unicode.IsLetter(r) })
	if end == -1 {
		end = len(code)
	}
	if end == 0 {
		return "?"
	}
	return code[:end]
}

func (s *SummaryService) Print(w io.Writer, r *models.RunReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 OUTCODE RETRIEVAL SUMMARY (%s)\033[0m\n", r.Kind)
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.RunID != "" {
		fmt.Fprintf(w, "  Run id                 : %s\n", r.RunID)
	}
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  Duration               : %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  Units attempted        : \033[1m%d\033[0m\n", r.Units)
	fmt.Fprintf(w, "  Succeeded              : \033[1;32m%d\033[0m (%d after retry)\n", r.Succeeded, r.Recovered)
	fmt.Fprintf(w, "  Gave up                : \033[1;31m%d\033[0m\n", r.GaveUp)
	fmt.Fprintf(w, "  Records stored         : \033[1m%d\033[0m\n", r.RecordsStored)
	fmt.Fprintf(w, "  Classification issues  : %d\n", r.Issues)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Top Units by Records\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopUnits) == 0 {
		fmt.Fprintf(w, "  No records stored\n")
	} else {
		for i, o := range r.TopUnits {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-8s (id %-5d) \033[1;32m%d\033[0m\n",
				i+1, o.Outcode.Code, o.Outcode.ID, o.Stored)
		}
	}
	fmt.Fprintln(w)

	var failed []models.UnitOutcome
	for _, o := range r.Outcomes {
		if !o.Success {
			failed = append(failed, o)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Abandoned Units\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		for _, o := range failed {
			fmt.Fprintf(w, "  %-8s %s\n", o.Outcode.Code, truncate(o.Err, 42))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Records by Postcode Area\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.StoredByRegion) == 0 {
		fmt.Fprintf(w, "  No region data\n")
	} else {
		type regionCount struct {
			region string
			count  int
		}
		var regions []regionCount
		for region, cnt := range r.StoredByRegion {
			regions = append(regions, regionCount{region, cnt})
		}
		sort.Slice(regions, func(i, j int) bool {
			if regions[i].count != regions[j].count {
				return regions[i].count > regions[j].count
			}
			return regions[i].region < regions[j].region
		})
		for _, rc := range regions {
			bar := strings.Repeat("█", scaleBar(rc.count, regions[0].count, 30))
			fmt.Fprintf(w, "  %-6s %s (%d)\n", rc.region, bar, rc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// scaleBar maps n onto [1, width] relative to max.
func scaleBar(n, max, width int) int {
	if max <= 0 || n <= 0 {
		return 0
	}
	w := n * width / max
	if w < 1 {
		w = 1
	}
	return w
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
