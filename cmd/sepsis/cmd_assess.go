package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sepsiswatch/client"
)

// connectionError marks a backend that could not be reached.
type connectionError struct {
	url string
	err error
}

func (e *connectionError) Error() string {
	return fmt.Sprintf("Connection Error: Could not connect to the backend at %s. Is the server running?", e.url)
}

func (e *connectionError) Unwrap() error {
	return e.err
}

type assessOptions struct {
	url    string
	vitals client.Vitals
	width  int
}

func newAssessCommand() *cobra.Command {
	opts := &assessOptions{vitals: client.DefaultVitals()}
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess bedside vitals against a running server",
		Long: `Send heart rate, systolic blood pressure, temperature, oxygen saturation
and white blood cell count to the server's /predict endpoint and classify the
returned probability at the operating threshold.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			assessment, err := client.New(opts.url).Assess(cmd.Context(), opts.vitals)
			if errors.Is(err, client.ErrConnection) {
				return &connectionError{url: opts.url, err: err}
			}
			var apiErr *client.APIError
			if errors.As(err, &apiErr) {
				return fmt.Errorf("API Error: %s", apiErr.Message)
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), assessment.Render(opts.width))
			return nil
		},
	}

	v := &opts.vitals
	cmd.Flags().StringVar(&opts.url, "url", "http://127.0.0.1:5000", "Base URL of the risk API")
	cmd.Flags().Float64Var(&v.HR, "hr", v.HR, "Heart rate (bpm)")
	cmd.Flags().Float64Var(&v.SBP, "sbp", v.SBP, "Systolic blood pressure (mmHg)")
	cmd.Flags().Float64Var(&v.Temp, "temp", v.Temp, "Temperature (Celsius)")
	cmd.Flags().Float64Var(&v.O2Sat, "o2sat", v.O2Sat, "Oxygen saturation (%)")
	cmd.Flags().Float64Var(&v.WBC, "wbc", v.WBC, "White blood cell count (10^3/uL)")
	cmd.Flags().IntVar(&opts.width, "width", 40, "Width of the risk bar")

	return cmd
}
