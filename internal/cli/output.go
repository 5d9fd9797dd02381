package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/appthwack/thwack/internal/appthwack"
)

var (
	passColor    = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	failureColor = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.Faint)
)

func outcomeColor(o appthwack.Outcome) *color.Color {
	switch o {
	case appthwack.OutcomePass:
		return passColor
	case appthwack.OutcomeWarning:
		return warningColor
	}
	return failureColor
}

func resultColor(result string) *color.Color {
	switch result {
	case "pass":
		return passColor
	case "warning":
		return warningColor
	case "":
		return dimColor
	}
	return failureColor
}

func printSummary(w io.Writer, s *appthwack.ResultSummary) {
	if s == nil {
		fmt.Fprintln(w, dimColor.Sprint("<no summary>"))
		return
	}
	result := s.Result
	if result == "" {
		result = string(s.Status)
	}
	fmt.Fprintf(w, "[%d] %s (%s) %s\n", s.ID, s.Name, s.Status, resultColor(s.Result).Sprint(result))
	fmt.Fprintf(w, "  %s  %s  %s  %d/%d completed\n",
		passColor.Sprintf("%d passed", s.Passes),
		warningColor.Sprintf("%d warnings", s.Warnings),
		failureColor.Sprintf("%d failed", s.Failures),
		s.Completed, s.Count)
	if s.ReportFile != "" {
		fmt.Fprintf(w, "  report: %s\n", s.ReportFile)
	}
}

// printResult lists the by-device grouping of each outcome.
func printResult(w io.Writer, res *appthwack.Result, failuresOnly bool) {
	printSummary(w, res.Summary)
	if !res.IsCompleted() {
		fmt.Fprintln(w, dimColor.Sprint("  results are not complete yet"))
	}
	for _, o := range appthwack.Outcomes {
		if failuresOnly && o == appthwack.OutcomePass {
			continue
		}
		c := outcomeColor(o)
		for _, dev := range res.Group(o).ByDevice {
			if dev == nil {
				continue
			}
			fmt.Fprintf(w, "%s %s\n", c.Sprintf("%-7s", o), dev.Name)
			for _, t := range dev.Results {
				if t == nil {
					continue
				}
				fmt.Fprintf(w, "    %s\n", t)
			}
		}
	}
}
