// tools/cmd/dummygen/main.go
package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/qr-payment-confirm/internal/sandbox"
)

var outcomes = []sandbox.Outcome{
	sandbox.OutcomeScan,
	sandbox.OutcomeScan,
	sandbox.OutcomeScan,
	sandbox.OutcomeTimeout,
	sandbox.OutcomeDecline,
	sandbox.OutcomeSilent,
	sandbox.OutcomeDrop,
}

// declined response codes seen from the gateway
var declineCodes = []string{"05", "51", "55", "68", "91"}

func main() {
	n := flag.Int("n", 100, "number of scenarios (header excluded)")
	out := flag.String("out", "tests/data/scenarios.csv", "output CSV path")
	maxAfter := flag.Duration("max-after", 20*time.Second, "upper bound for the scripted delay")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	scenarios := generate(rng, *n, *maxAfter)

	if err := sandbox.WriteScenarios(f, scenarios); err != nil {
		log.Fatal(err)
	}
	log.Printf("generated %s (%d rows + header, seed %d)", *out, *n, *seed)
}

// generate builds n scenarios with unique amounts starting at 0.01.
func generate(rng *rand.Rand, n int, maxAfter time.Duration) []sandbox.Scenario {
	scenarios := make([]sandbox.Scenario, 0, n)
	for i := 0; i < n; i++ {
		sc := sandbox.Scenario{
			Amount:  decimal.New(int64(i+1), -2),
			Outcome: outcomes[rng.Intn(len(outcomes))],
			After:   time.Duration(rng.Int63n(int64(maxAfter))).Round(time.Millisecond),
		}
		switch sc.Outcome {
		case sandbox.OutcomeDecline:
			sc.ResponseCode = declineCodes[rng.Intn(len(declineCodes))]
			sc.After = 0
		case sandbox.OutcomeTimeout, sandbox.OutcomeSilent, sandbox.OutcomeDrop:
			sc.PaidOnQuery = rng.Intn(2) == 0
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios
}
