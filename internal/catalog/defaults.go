// defaults.go holds the built-in metric catalog used when no catalog file is
// configured. The set mirrors the quality metrics a medical-device QMS tracks
// against ISO 13485:2016 and ISO 14971:2019.
package catalog

// Default returns the built-in metric catalog. The definitions are validated
// at package test time, so construction cannot fail at runtime.
func Default() *Catalog {
	c, err := New(defaultMetrics)
	if err != nil {
		// Unreachable unless defaultMetrics itself is broken.
		panic(err)
	}
	return c
}

var defaultMetrics = []Metric{
	{
		ID:       "capa-closure-rate",
		Name:     "CAPA On-Time Closure Rate",
		Category: "CAPA",
		Unit:     "%",
		Threshold: Threshold{
			Green:     95,
			Yellow:    90,
			Direction: HigherIsBetter,
		},
		ISOMappings: []ISOMapping{
			{Standard: "ISO 13485:2016", Clause: "8.5.2", Title: "Corrective action"},
			{Standard: "21 CFR 820.100", Clause: "a", Title: "Corrective and preventive action"},
		},
		Inputs: []InputSpec{
			{Key: "capas_due", Label: "CAPAs due this period"},
			{Key: "capas_closed_on_time", Label: "CAPAs closed on time"},
		},
	},
	{
		ID:       "ncr-rate",
		Name:     "Nonconformance Rate",
		Category: "Production",
		Unit:     "per 1000 units",
		Threshold: Threshold{
			Green:     2,
			Yellow:    5,
			Direction: LowerIsBetter,
		},
		ISOMappings: []ISOMapping{
			{Standard: "ISO 13485:2016", Clause: "8.3", Title: "Control of nonconforming product"},
		},
		Inputs: []InputSpec{
			{Key: "units_produced", Label: "Units produced"},
			{Key: "ncrs_opened", Label: "NCRs opened"},
		},
	},
	{
		ID:       "training-completion",
		Name:     "Training Completion Rate",
		Category: "Resources",
		Unit:     "%",
		Threshold: Threshold{
			Green:     98,
			Yellow:    92,
			Direction: HigherIsBetter,
		},
		ISOMappings: []ISOMapping{
			{Standard: "ISO 13485:2016", Clause: "6.2", Title: "Human resources"},
		},
		Inputs: []InputSpec{
			{Key: "assignments_due", Label: "Training assignments due"},
			{Key: "assignments_completed", Label: "Assignments completed"},
		},
	},
	{
		ID:       "audit-findings-overdue",
		Name:     "Overdue Internal Audit Findings",
		Category: "Internal Audit",
		Unit:     "findings",
		Threshold: Threshold{
			Green:     0,
			Yellow:    3,
			Direction: LowerIsBetter,
		},
		ISOMappings: []ISOMapping{
			{Standard: "ISO 13485:2016", Clause: "8.2.4", Title: "Internal audit"},
		},
	},
	{
		ID:       "supplier-quality",
		Name:     "Supplier Acceptance Rate",
		Category: "Purchasing",
		Unit:     "%",
		Threshold: Threshold{
			Green:     97,
			Yellow:    93,
			Direction: HigherIsBetter,
		},
		ISOMappings: []ISOMapping{
			{Standard: "ISO 13485:2016", Clause: "7.4.1", Title: "Purchasing process"},
		},
		Inputs: []InputSpec{
			{Key: "lots_received", Label: "Lots received"},
			{Key: "lots_accepted", Label: "Lots accepted"},
		},
	},
	{
		ID:       "risk-mitigation-coverage",
		Name:     "Risk Mitigation Coverage",
		Category: "Risk Management",
		Unit:     "%",
		Threshold: Threshold{
			Green:     100,
			Yellow:    95,
			Direction: HigherIsBetter,
		},
		ISOMappings: []ISOMapping{
			{Standard: "ISO 14971:2019", Clause: "7.1", Title: "Risk control option analysis"},
		},
		Inputs: []InputSpec{
			{Key: "identified_risks", Label: "Identified risks"},
			{Key: "risks_with_controls", Label: "Risks with implemented controls"},
		},
	},
	{
		ID:       "complaint-response-time",
		Name:     "Complaint Response Time",
		Category: "Post-Market",
		Unit:     "days",
		Threshold: Threshold{
			Green:     5,
			Yellow:    10,
			Direction: LowerIsBetter,
		},
		ISOMappings: []ISOMapping{
			{Standard: "ISO 13485:2016", Clause: "8.2.2", Title: "Complaint handling"},
		},
	},
	{
		ID:       "change-control-cycle-time",
		Name:     "Change Control Cycle Time",
		Category: "Design & Development",
		Unit:     "days",
		Threshold: Threshold{
			Green:     14,
			Yellow:    30,
			Direction: LowerIsBetter,
		},
		ISOMappings: []ISOMapping{
			{Standard: "ISO 13485:2016", Clause: "7.3.9", Title: "Control of design and development changes"},
		},
	},
}
