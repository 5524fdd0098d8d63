package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ja7ad/retrofit/pkg/features"
	"github.com/ja7ad/retrofit/pkg/predict"
)

type predictOpts struct {
	payload string
	variant string
	output  string

	typ       string
	floorArea float64
	energy    float64
	eui       float64
	builtYear float64
}

func newPredictCommand(a *app) *cobra.Command {
	var o predictOpts

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the retrofit saving for one building",
		Long: `Predict reads a building description from --payload (a JSON object, "-" for
stdin) and/or the field flags, which override payload fields. The variant
comes from --variant, else the payload's "variant" field, else C.`,
		Example: `  retrofit predict --type school --floor-area 1200 --energy 250000
  echo '{"type":"hospital","floorAreaM2":5000,"energy_kwh":1200000}' | retrofit predict --payload - -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd, a, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.payload, "payload", "", `JSON payload file ("-" for stdin)`)
	f.StringVar(&o.variant, "variant", "", "model variant: A, B or C (ensemble)")
	f.StringVarP(&o.output, "output", "o", formatTable, "output format: table, json or yaml")
	f.StringVar(&o.typ, "type", "", "building type, e.g. office, school, hospital, factory")
	f.Float64Var(&o.floorArea, "floor-area", 0, "floor area in m²")
	f.Float64Var(&o.energy, "energy", 0, "annual energy consumption in kWh")
	f.Float64Var(&o.eui, "eui", 0, "energy use intensity in kWh/m²/year")
	f.Float64Var(&o.builtYear, "built-year", 0, "construction year")

	return cmd
}

func runPredict(cmd *cobra.Command, a *app, o predictOpts) error {
	format, err := parseFormat(o.output)
	if err != nil {
		return err
	}

	p, err := readPayload(cmd.InOrStdin(), o.payload)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("type") {
		p[features.KeyType] = o.typ
	}
	if f.Changed("floor-area") {
		p[features.KeyFloorArea] = o.floorArea
	}
	if f.Changed("energy") {
		p[features.KeyEnergy] = o.energy
	}
	if f.Changed("eui") {
		p[features.KeyEUI] = o.eui
	}
	if f.Changed("built-year") {
		p[features.KeyBuiltYear] = o.builtYear
	}

	m := a.open()
	v := m.VariantOf(p)
	if f.Changed("variant") {
		if v, err = predict.ParseVariant(o.variant); err != nil {
			return err
		}
	}

	r := m.PredictVariant(p, v)
	if format != formatTable {
		return encode(cmd.OutOrStdout(), format, r)
	}
	return printResult(cmd.OutOrStdout(), r)
}

// readPayload decodes a JSON object from path. An empty path is an empty
// payload; "-" reads stdin.
func readPayload(stdin io.Reader, path string) (features.Payload, error) {
	p := features.Payload{}
	if path == "" {
		return p, nil
	}

	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("payload %s: %w", path, err)
	}
	if p == nil {
		p = features.Payload{}
	}
	return p, nil
}

func printResult(w io.Writer, r predict.Result) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "VARIANT\tSOURCE\tSAVING (%)\tSAVING (kWh/yr)\tSAVING (cost/yr)\tPAYBACK (y)\tLABEL")
	fmt.Fprintln(tw, "-------\t------\t----------\t---------------\t----------------\t-----------\t-----")

	src := string(r.Source)
	if r.Degraded {
		src += " (degraded)"
	}
	printer.Fprintf(tw, "%s\t%s\t%.4f\t%.2f\t%.2f\t%.3f\t%s\n",
		r.Variant, src, r.SavingPct, r.SavingKwhYr, r.SavingCostYr, r.PaybackYears, r.Label)
	return tw.Flush()
}
