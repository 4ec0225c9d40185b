package model

import (
	"strconv"
	"strings"

	"github.com/soocke/beam-profiler-go/domain/pipeline"
)

// ExposureStep is the increment used by the exposure -/+ buttons.
const ExposureStep = 5

// ParseExposureControl parses a control value and checks its range.
func ParseExposureControl(s string) (int, bool) {
	c, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || c < pipeline.MinExposureControl || c > pipeline.MaxExposureControl {
		return 0, false
	}
	return c, true
}

// StepExposureControl moves control by delta steps, clamped to the valid range.
func StepExposureControl(control, delta int) int {
	return min(max(control+delta*ExposureStep, pipeline.MinExposureControl), pipeline.MaxExposureControl)
}
