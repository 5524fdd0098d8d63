package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ja7ad/retrofit/pkg/features"
	"github.com/ja7ad/retrofit/pkg/predict"
)

// maxLine bounds a single JSONL payload.
const maxLine = 4 << 20

type batchOpts struct {
	in         string
	out        string
	csvPath    string
	metricsOut string
	workers    int
}

// batchRecord is one output line. Result is nil when the input line could
// not be decoded.
type batchRecord struct {
	Line int `json:"line"`
	*predict.Result
	Error string `json:"error,omitempty"`
}

func newBatchCommand(a *app) *cobra.Command {
	var o batchOpts

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Predict a JSON Lines file of buildings",
		Long: `Batch reads one JSON payload per line and writes one JSON result per line,
in input order. Blank lines are skipped; a line that is not a JSON object
yields a record with an "error" field and does not stop the run.`,
		Example: `  retrofit batch --in buildings.jsonl --out results.jsonl
  cat buildings.jsonl | retrofit batch --csv results.csv --metrics-out metrics.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, a, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.in, "in", "-", `input JSONL file ("-" for stdin)`)
	f.StringVar(&o.out, "out", "-", `output JSONL file ("-" for stdout)`)
	f.StringVar(&o.csvPath, "csv", "", "also write results to a CSV file")
	f.StringVar(&o.metricsOut, "metrics-out", "", "write prometheus counters in text format to this file")
	f.IntVarP(&o.workers, "workers", "w", runtime.NumCPU(), "number of concurrent predictions")

	return cmd
}

func runBatch(cmd *cobra.Command, a *app, o batchOpts) error {
	if o.workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in, closeIn, err := openInput(cmd.InOrStdin(), o.in)
	if err != nil {
		return err
	}
	defer closeIn()

	lines, err := readLines(in)
	if err != nil {
		return err
	}

	m := a.open()
	records, err := predictAll(ctx, m, lines, o.workers)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(cmd.OutOrStdout(), o.out)
	if err != nil {
		return err
	}
	defer closeOut()

	enc := json.NewEncoder(out)
	var failed, degraded int
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
		switch {
		case records[i].Result == nil:
			failed++
		case records[i].Degraded:
			degraded++
		}
	}

	if o.csvPath != "" {
		if err := writeCSV(o.csvPath, records); err != nil {
			return err
		}
	}
	if o.metricsOut != "" {
		if err := writeMetrics(a, o.metricsOut); err != nil {
			return err
		}
	}

	a.log.Info("batch done", "total", len(records), "failed", failed, "degraded", degraded)
	return nil
}

type inputLine struct {
	n   int
	raw []byte
}

func readLines(r io.Reader) ([]inputLine, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var lines []inputLine
	n := 0
	for sc.Scan() {
		n++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		lines = append(lines, inputLine{n: n, raw: bytes.Clone(b)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input line %d: %w", n+1, err)
	}
	return lines, nil
}

// predictAll serves lines concurrently and returns the records in input order.
func predictAll(ctx context.Context, m *predict.Manager, lines []inputLine, workers int) ([]batchRecord, error) {
	records := make([]batchRecord, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, l := range lines {
		i, l := i, l
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = predictLine(m, l)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch interrupted: %w", err)
	}
	return records, nil
}

func predictLine(m *predict.Manager, l inputLine) batchRecord {
	var p features.Payload
	if err := json.Unmarshal(l.raw, &p); err != nil {
		return batchRecord{Line: l.n, Error: err.Error()}
	}
	if p == nil {
		return batchRecord{Line: l.n, Error: "payload is null"}
	}
	r := m.PredictPayload(p)
	return batchRecord{Line: l.n, Result: &r}
}

func writeCSV(path string, records []batchRecord) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{
		"line", "variant", "source", "degraded",
		"saving_pct", "saving_kwh_yr", "saving_cost_yr", "payback_years", "label", "error",
	})
	for _, rec := range records {
		row := []string{strconv.Itoa(rec.Line), "", "", "", "", "", "", "", "", rec.Error}
		if r := rec.Result; r != nil {
			row[1] = r.Variant.String()
			row[2] = string(r.Source)
			row[3] = strconv.FormatBool(r.Degraded)
			row[4] = fmtFloat(r.SavingPct)
			row[5] = fmtFloat(r.SavingKwhYr)
			row[6] = fmtFloat(r.SavingCostYr)
			row[7] = fmtFloat(r.PaybackYears)
			row[8] = string(r.Label)
		}
		_ = w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}

func writeMetrics(a *app, path string) error {
	mfs, err := a.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	f, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return f.Close()
}

func fmtFloat(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func openInput(stdin io.Reader, path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
