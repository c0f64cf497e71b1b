package client

import (
	"fmt"
	"math"
	"strings"
)

// RiskLevel is the label shown to the clinician.
type RiskLevel string

const (
	HighRisk RiskLevel = "High Risk"
	LowRisk  RiskLevel = "Low Risk"
)

// Assessment is a classified prediction.
type Assessment struct {
	Probability float64
	Threshold   float64
	Level       RiskLevel
}

// Classify applies probability >= threshold => HighRisk.
func Classify(probability, threshold float64) Assessment {
	level := LowRisk
	if probability >= threshold {
		level = HighRisk
	}
	return Assessment{Probability: probability, Threshold: threshold, Level: level}
}

// Headline is the one-line verdict.
func (a Assessment) Headline() string {
	if a.Level == HighRisk {
		return "High Risk of Sepsis Detected"
	}
	return "Low Risk of Sepsis"
}

// Explanation says which side of the threshold the score fell on.
func (a Assessment) Explanation() string {
	direction := "below"
	if a.Level == HighRisk {
		direction = "above"
	}
	return fmt.Sprintf("The prediction is '%s' because the risk score is %s the optimal threshold of %g%%.",
		a.Level, direction, math.Round(a.Threshold*1000)/10)
}

// Render prints the verdict, explanation, score and a progress bar of the
// given width.
func (a Assessment) Render(width int) string {
	if width <= 0 {
		width = 40
	}
	filled := int(math.Round(clamp01(a.Probability) * float64(width)))

	var b strings.Builder
	b.WriteString(a.Headline())
	b.WriteString("\n")
	b.WriteString(a.Explanation())
	b.WriteString("\n")
	fmt.Fprintf(&b, "Sepsis Risk Score: %.1f%%\n", a.Probability*100)
	fmt.Fprintf(&b, "[%s%s]\n", strings.Repeat("#", filled), strings.Repeat("-", width-filled))
	return b.String()
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
