package ppg

// computeIndices derives the wellness scores from the three metric
// domains. All scores are bounded; no single input can push one outside
// its documented range.
func computeIndices(t TemporalMetrics, f FrequencyMetrics, n NonLinearMetrics) HRVIndices {
	return HRVIndices{
		Stress:           stressIndex(t, f),
		Recovery:         recoveryIndex(t, f),
		AutonomicBalance: autonomicBalance(f),
		HealthScore:      healthScore(t, f, n),
	}
}

// stressIndex rises with sympathetic dominance (high LF/HF) and with
// suppressed overall variability (low SDNN).
func stressIndex(t TemporalMetrics, f FrequencyMetrics) float64 {
	// LF/HF 1.0 is balanced; 4.0 and beyond maps to the full
	// sympathetic contribution.
	sympathetic := clamp((f.LFHFRatio-1.0)/3.0, 0, 1) * 60

	// SDNN below 50 ms contributes up to 40 points.
	suppression := clamp((50.0-t.SDNN)/50.0, 0, 1) * 40

	return clamp(sympathetic+suppression, 0, 100)
}

// recoveryIndex rises with parasympathetic activity: HF share and
// RMSSD.
func recoveryIndex(t TemporalMetrics, f FrequencyMetrics) float64 {
	parasym := clamp(f.HFNorm/100.0, 0, 1) * 60
	rmssd := clamp(t.RMSSD/50.0, 0, 1) * 40
	return clamp(parasym+rmssd, 0, 100)
}

// autonomicBalance maps the HF/LF normalized split into [-1, +1]:
// negative means sympathetic dominance, positive parasympathetic.
func autonomicBalance(f FrequencyMetrics) float64 {
	return clamp((f.HFNorm-f.LFNorm)/100.0, -1, 1)
}

// healthScore is a bounded additive score rewarding values inside the
// ranges typical of healthy adults.
func healthScore(t TemporalMetrics, f FrequencyMetrics, n NonLinearMetrics) float64 {
	score := 50.0
	if t.SDNN >= 30 && t.SDNN <= 100 {
		score += 15
	}
	if t.RMSSD > 20 {
		score += 10
	}
	if n.DFAAlpha1 >= 0.75 && n.DFAAlpha1 <= 1.25 {
		score += 15
	}
	if f.LFHFRatio >= 1 && f.LFHFRatio <= 2 {
		score += 10
	}
	// Strongly degraded variability pulls the score down.
	if t.SDNN < 15 {
		score -= 20
	}
	return clamp(score, 0, 100)
}
