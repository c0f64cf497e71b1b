package ml

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// DefaultThresholds is the operating-point sweep reported after training.
var DefaultThresholds = []float64{0.2, 0.3, 0.4, 0.5, 0.6}

// ConfusionMatrix counts outcomes with class 1 as positive.
type ConfusionMatrix struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

// ClassMetrics are the report columns for one class.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ThresholdReport evaluates the decision rule probability >= Threshold.
type ThresholdReport struct {
	Threshold float64         `json:"threshold"`
	Confusion ConfusionMatrix `json:"confusion"`
	Negative  ClassMetrics    `json:"negative"`
	Positive  ClassMetrics    `json:"positive"`
	Accuracy  float64         `json:"accuracy"`
}

// PredictAll scores every row.
func PredictAll(model Model, features [][]float64) ([]float64, error) {
	probs := make([]float64, len(features))
	for i, row := range features {
		p, err := model.PredictProba(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		probs[i] = p
	}
	return probs, nil
}

// EvaluateThresholds builds one report per threshold; a probability at or
// above the threshold is a positive prediction.
func EvaluateThresholds(probs []float64, labels []int, thresholds []float64) ([]ThresholdReport, error) {
	if len(probs) == 0 {
		return nil, errors.New("no predictions to evaluate")
	}
	if len(probs) != len(labels) {
		return nil, errors.New("predictions and labels size mismatch")
	}

	reports := make([]ThresholdReport, 0, len(thresholds))
	for _, t := range thresholds {
		var cm ConfusionMatrix
		for i, p := range probs {
			predicted := p >= t
			switch {
			case predicted && labels[i] == 1:
				cm.TP++
			case predicted:
				cm.FP++
			case labels[i] == 1:
				cm.FN++
			default:
				cm.TN++
			}
		}
		reports = append(reports, ThresholdReport{
			Threshold: t,
			Confusion: cm,
			Negative:  classMetrics(cm.TN, cm.FN, cm.FP),
			Positive:  classMetrics(cm.TP, cm.FP, cm.FN),
			Accuracy:  float64(cm.TP+cm.TN) / float64(len(probs)),
		})
	}
	return reports, nil
}

func classMetrics(truePos, falsePos, falseNeg int) ClassMetrics {
	m := ClassMetrics{Support: truePos + falseNeg}
	if truePos+falsePos > 0 {
		m.Precision = float64(truePos) / float64(truePos+falsePos)
	}
	if truePos+falseNeg > 0 {
		m.Recall = float64(truePos) / float64(truePos+falseNeg)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// ROCAUC integrates the gonum ROC curve with the trapezoidal rule. Tied
// scores produce a single diagonal step.
func ROCAUC(probs []float64, labels []int) (float64, error) {
	if len(probs) != len(labels) {
		return 0, errors.New("predictions and labels size mismatch")
	}
	var positives, negatives int
	for _, label := range labels {
		if label == 1 {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return 0, errors.New("roc auc needs both classes")
	}

	scores := append([]float64(nil), probs...)
	classes := make([]bool, len(labels))
	for i, label := range labels {
		classes[i] = label == 1
	}
	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// Format renders the report in the familiar classification-report layout.
func (r ThresholdReport) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Threshold = %.2f ===\n", r.Threshold)
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	fmt.Fprintf(&b, "%12s %10.4f %10.4f %10.4f %10d\n", "0", r.Negative.Precision, r.Negative.Recall, r.Negative.F1, r.Negative.Support)
	fmt.Fprintf(&b, "%12s %10.4f %10.4f %10.4f %10d\n\n", "1", r.Positive.Precision, r.Positive.Recall, r.Positive.F1, r.Positive.Support)
	fmt.Fprintf(&b, "%12s %10s %10s %10.4f %10d\n", "accuracy", "", "", r.Accuracy, r.Negative.Support+r.Positive.Support)
	b.WriteString("Confusion Matrix:\n")
	fmt.Fprintf(&b, "[[%d %d]\n [%d %d]]\n", r.Confusion.TN, r.Confusion.FP, r.Confusion.FN, r.Confusion.TP)
	return b.String()
}
