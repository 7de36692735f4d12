package sandbox

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) []Scenario {
	t.Helper()
	f, err := os.Open("testdata/scenarios.csv")
	require.NoError(t, err)
	defer f.Close()

	scenarios, err := LoadScenarios(f)
	require.NoError(t, err)
	return scenarios
}

func TestLoadScenarios(t *testing.T) {
	scenarios := loadFixture(t)
	require.Len(t, scenarios, 7)

	require.Equal(t, "1.00", scenarios[0].key())
	require.Equal(t, OutcomeScan, scenarios[0].Outcome)
	require.Equal(t, 20*time.Millisecond, scenarios[0].After)

	require.True(t, scenarios[1].PaidOnQuery)
	require.Equal(t, OutcomeDecline, scenarios[3].Outcome)
	require.Equal(t, "51", scenarios[3].ResponseCode)
}

func TestLoadScenarios_Errors(t *testing.T) {
	for name, body := range map[string]string{
		"empty":       "",
		"bad header":  "a,b,c,d,e\n",
		"bad amount":  "amount,outcome,after,response_code,paid_on_query\nten,scan,1s,,false\n",
		"bad outcome": "amount,outcome,after,response_code,paid_on_query\n1.00,explode,1s,,false\n",
		"bad after":   "amount,outcome,after,response_code,paid_on_query\n1.00,scan,soon,,false\n",
		"bad bool":    "amount,outcome,after,response_code,paid_on_query\n1.00,scan,1s,,maybe\n",
		"short row":   "amount,outcome,after,response_code,paid_on_query\n1.00,scan\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadScenarios(strings.NewReader(body))
			require.Error(t, err)
		})
	}
}

func TestWriteScenarios_RoundTrip(t *testing.T) {
	in := []Scenario{
		{Amount: decimal.RequireFromString("9.5"), Outcome: OutcomeTimeout, After: 2 * time.Second, PaidOnQuery: true},
		{Amount: decimal.RequireFromString("10"), Outcome: OutcomeDecline, ResponseCode: "05"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteScenarios(&buf, in))

	out, err := LoadScenarios(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "9.50", out[0].key())
	require.Equal(t, in[0].After, out[0].After)
	require.True(t, out[0].PaidOnQuery)
	require.Equal(t, "05", out[1].ResponseCode)
}
