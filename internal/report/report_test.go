package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nslcdgo/nslcdgo/internal/metrics"
)

func TestPrintSummary(t *testing.T) {
	m := metrics.New()
	m.Requests.Add(10)
	m.Success.Add(7)
	m.Fail.Add(3)

	var buf bytes.Buffer
	PrintSummary(&buf, m)
	out := buf.String()

	for _, want := range []string{"summary", "requests: 10", "success: 7", "fail: 3", "avg rps"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q in output: %s", want, out)
		}
	}
}
