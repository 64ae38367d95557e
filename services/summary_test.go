package services

import (
	"bytes"
	"strings"
	"testing"

	"outcode-retriever/models"
)

func sampleOutcomes() []models.UnitOutcome {
	return []models.UnitOutcome{
		{Outcode: models.Outcode{ID: 1, Code: "AB10"}, Success: true, Stored: 120},
		{Outcode: models.Outcode{ID: 2, Code: "AB11"}, Success: true, Stored: 30, NumRetries: 2},
		{Outcode: models.Outcode{ID: 3, Code: "E1W"}, Success: true, Stored: 0},
		{Outcode: models.Outcode{ID: 4, Code: "E2"}, Success: false, NumRetries: 2, Err: "outcode 4: search failed after 3 attempts"},
		{Outcode: models.Outcode{ID: 5, Code: "SW1A"}, Success: true, Stored: 60},
	}
}

func TestSummaryCounts(t *testing.T) {
	svc := NewSummaryService(newTestLogger())
	r := svc.Generate(sampleOutcomes())
	if r.Units != 5 {
		t.Errorf("Units: got %d, want 5", r.Units)
	}
	if r.Succeeded != 4 {
		t.Errorf("Succeeded: got %d, want 4", r.Succeeded)
	}
	if r.Recovered != 1 {
		t.Errorf("Recovered: got %d, want 1", r.Recovered)
	}
	if r.GaveUp != 1 {
		t.Errorf("GaveUp: got %d, want 1", r.GaveUp)
	}
	if r.RecordsStored != 210 {
		t.Errorf("RecordsStored: got %d, want 210", r.RecordsStored)
	}
}

func TestSummaryTopUnits(t *testing.T) {
	svc := NewSummaryService(newTestLogger())
	r := svc.Generate(sampleOutcomes())
	if len(r.TopUnits) != 3 {
		t.Fatalf("TopUnits len: got %d, want 3", len(r.TopUnits))
	}
	if r.TopUnits[0].Outcode.Code != "AB10" || r.TopUnits[1].Outcode.Code != "SW1A" {
		t.Errorf("TopUnits order: got %s, %s", r.TopUnits[0].Outcode.Code, r.TopUnits[1].Outcode.Code)
	}
}

func TestSummaryRegionGrouping(t *testing.T) {
	svc := NewSummaryService(newTestLogger())
	r := svc.Generate(sampleOutcomes())
	if r.StoredByRegion["AB"] != 150 {
		t.Errorf("AB count: got %d, want 150", r.StoredByRegion["AB"])
	}
	if r.StoredByRegion["SW"] != 60 {
		t.Errorf("SW count: got %d, want 60", r.StoredByRegion["SW"])
	}
	if _, ok := r.StoredByRegion["E"]; ok {
		t.Errorf("regions with nothing stored should be absent")
	}
}

func TestRegion(t *testing.T) {
	tests := map[string]string{
		"AB10": "AB",
		"e1w":  "E",
		"SW1A": "SW",
		"":     "?",
		"10":   "?",
		"BT":   "BT",
	}
	for in, want := range tests {
		if got := Region(in); got != want {
			t.Errorf("Region(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestSummaryPrint(t *testing.T) {
	svc := NewSummaryService(newTestLogger())
	r := svc.Generate(sampleOutcomes())
	r.Kind = models.ToRent
	r.Issues = 7

	var buf bytes.Buffer
	svc.Print(&buf, r)
	out := buf.String()

	for _, want := range []string{"to rent", "Abandoned Units", "E2", "AB10", "Classification issues  : 7"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q", want)
		}
	}
}

func TestSummaryEmptyInput(t *testing.T) {
	svc := NewSummaryService(newTestLogger())
	r := svc.Generate(nil)
	if r.Units != 0 || r.RecordsStored != 0 {
		t.Errorf("expected an empty report for no outcomes")
	}

	var buf bytes.Buffer
	svc.Print(&buf, r)
	if !strings.Contains(buf.String(), "No records stored") {
		t.Errorf("empty report should say no records were stored")
	}
}
