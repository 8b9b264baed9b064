// Package doctor runs preflight checks for a staking setup: configuration,
// wallet, password storage, RPC reachability, contract deployment and the
// local journal.
package doctor

import (
	"context"
	"encoding/json"
	"io"
)

// Doctor orchestrates the preflight checks
type Doctor struct {
	checkers []Checker
	writer   io.Writer
	output   *Output
	options  DoctorOptions
}

// New creates a Doctor with no checkers that reports to w
func New(opts DoctorOptions, w io.Writer, useColors bool) *Doctor {
	return &Doctor{
		writer:  w,
		output:  NewOutput(w, useColors && !opts.JSON),
		options: opts,
	}
}

// AddChecker adds a checker. Checkers run in the order they were added.
func (d *Doctor) AddChecker(c Checker) {
	d.checkers = append(d.checkers, c)
}

// Run executes the selected checks in order. In JSON mode nothing is printed
// until the report is complete.
func (d *Doctor) Run(ctx context.Context) (*DoctorReport, error) {
	selected := d.selected()
	report := &DoctorReport{Checks: make([]CheckResult, 0, len(selected))}

	if !d.options.JSON {
		d.output.Header()
	}
	for i, c := range selected {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !d.options.JSON {
			d.output.CheckStart(i+1, len(selected), c.Name())
		}
		result := c.Check(ctx)
		if !d.options.JSON {
			d.output.CheckResult(result)
		}
		report.add(result)
	}

	if d.options.JSON {
		return report, d.outputJSON(report)
	}
	d.output.Summary(report.Summary)
	return report, nil
}

func (d *Doctor) selected() []Checker {
	if d.options.Category == "" {
		return d.checkers
	}
	var out []Checker
	for _, c := range d.checkers {
		if c.Category() == d.options.Category {
			out = append(out, c)
		}
	}
	return out
}

func (r *DoctorReport) add(result CheckResult) {
	r.Checks = append(r.Checks, result)
	r.Summary.Total++
	switch result.Status {
	case StatusOK:
		r.Summary.Passed++
	case StatusError:
		r.Summary.Failed++
	case StatusWarning:
		r.Summary.Warned++
	case StatusSkipped:
		r.Summary.Skipped++
	}
}

func (d *Doctor) outputJSON(report *DoctorReport) error {
	enc := json.NewEncoder(d.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
