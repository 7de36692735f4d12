package sandbox

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is what the sandbox does with a payment after issuing its code.
type Outcome string

const (
	// OutcomeScan pushes "QR code scanned" after the delay.
	OutcomeScan Outcome = "scan"
	// OutcomeTimeout pushes "Timeout" after the delay.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeDecline refuses the create call.
	OutcomeDecline Outcome = "decline"
	// OutcomeSilent never pushes anything.
	OutcomeSilent Outcome = "silent"
	// OutcomeDrop closes the push stream after the delay.
	OutcomeDrop Outcome = "drop"
)

var scenarioHeader = []string{"amount", "outcome", "after", "response_code", "paid_on_query"}

// Scenario scripts the sandbox's behaviour for one amount.
type Scenario struct {
	Amount       decimal.Decimal
	Outcome      Outcome
	After        time.Duration
	ResponseCode string
	// PaidOnQuery makes the status query report success even without a scan.
	PaidOnQuery bool
}

func (s Scenario) key() string { return s.Amount.StringFixed(2) }

// LoadScenarios reads a CSV with the header
// amount,outcome,after,response_code,paid_on_query.
func LoadScenarios(r io.Reader) ([]Scenario, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(scenarioHeader)
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("read scenarios: empty file")
	}
	if strings.Join(records[0], ",") != strings.Join(scenarioHeader, ",") {
		return nil, fmt.Errorf("read scenarios: unexpected header %v", records[0])
	}

	out := make([]Scenario, 0, len(records)-1)
	for i, rec := range records[1:] {
		sc, err := parseScenario(rec)
		if err != nil {
			return nil, fmt.Errorf("scenario row %d: %w", i+2, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

func parseScenario(rec []string) (Scenario, error) {
	amount, err := decimal.NewFromString(rec[0])
	if err != nil {
		return Scenario{}, fmt.Errorf("amount %q: %w", rec[0], err)
	}
	sc := Scenario{Amount: amount, Outcome: Outcome(rec[1]), ResponseCode: rec[3]}

	switch sc.Outcome {
	case OutcomeScan, OutcomeTimeout, OutcomeDecline, OutcomeSilent, OutcomeDrop:
	default:
		return Scenario{}, fmt.Errorf("unknown outcome %q", rec[1])
	}
	if rec[2] != "" {
		if sc.After, err = time.ParseDuration(rec[2]); err != nil {
			return Scenario{}, fmt.Errorf("after %q: %w", rec[2], err)
		}
	}
	if rec[4] != "" {
		if sc.PaidOnQuery, err = strconv.ParseBool(rec[4]); err != nil {
			return Scenario{}, fmt.Errorf("paid_on_query %q: %w", rec[4], err)
		}
	}
	return sc, nil
}

// WriteScenarios writes scenarios in the format LoadScenarios reads.
func WriteScenarios(w io.Writer, scenarios []Scenario) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(scenarioHeader); err != nil {
		return err
	}
	for _, sc := range scenarios {
		row := []string{
			sc.key(),
			string(sc.Outcome),
			sc.After.String(),
			sc.ResponseCode,
			strconv.FormatBool(sc.PaidOnQuery),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
