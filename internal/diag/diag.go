// Package diag aggregates hardware self-test results. Every check runs even
// after an earlier one fails, and the per-subsystem outcome is kept alongside
// the all-must-pass verdict.
package diag

import (
	"strings"

	"github.com/rs/zerolog"
)

// Harness runs the master subsystem self-tests. Channel tests belong to the
// channel drivers themselves.
type Harness interface {
	TestClock() bool
	TestDateTime() bool
	TestStorage() bool
	TestSDCard() bool
	TestNetwork() bool
	TestThermal() bool
	TestRelays() bool
}

type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

type Report struct {
	Results []Result `json:"results"`
}

func (r *Report) Add(name string, passed bool) bool {
	r.Results = append(r.Results, Result{Name: name, Passed: passed})
	return passed
}

// Merge appends other's results to r.
func (r *Report) Merge(other Report) {
	r.Results = append(r.Results, other.Results...)
}

// Passed is the logical AND of every result. An empty report passes.
func (r Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

func (r Report) Failed() []string {
	var failed []string
	for _, res := range r.Results {
		if !res.Passed {
			failed = append(failed, res.Name)
		}
	}
	return failed
}

func (r Report) MarshalZerologObject(e *zerolog.Event) {
	for _, res := range r.Results {
		e.Bool(res.Name, res.Passed)
	}
}

func (r Report) String() string {
	if r.Passed() {
		return "ok"
	}
	return "failed: " + strings.Join(r.Failed(), ", ")
}

type MasterOptions struct {
	SDCard  bool
	Network bool
}

// TestMaster runs the master subsystem tests in a fixed order. Optional
// subsystems are only tested when present.
func TestMaster(h Harness, opts MasterOptions) Report {
	var r Report
	r.Add("clock", h.TestClock())
	r.Add("datetime", h.TestDateTime())
	r.Add("storage", h.TestStorage())
	if opts.SDCard {
		r.Add("sd_card", h.TestSDCard())
	}
	if opts.Network {
		r.Add("network", h.TestNetwork())
	}
	r.Add("thermal", h.TestThermal())
	r.Add("relays", h.TestRelays())
	return r
}
