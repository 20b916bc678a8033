package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Stage tags a pipeline position
type Stage int

const (
	StageClippingSuppression Stage = iota
	StageWienerDeconv
	StageSharpen
	StageRotate
	StageSigmaDenoise1
	StageIansNR
	StageBilateralDenoise
	StageROFDenoise
	StageSigmaDenoise2
	StageSavitzkyGolay
	StageEqualizeLocally
	StageLocalContrast
	StageGamma
	StageColorNormalize
	StageRGBBalance
	StageSaturation
	StageDispersion
	StageHistogramStretch

	numStages

	// StagePSF is not part of the order. Requesting it regenerates the
	// synthetic PSF and implies StageWienerDeconv.
	StagePSF Stage = 100
)

// ErrUnknownStage is returned for a stage name or number outside the stage table
var ErrUnknownStage = errors.New("unknown stage")

var stageNames = map[Stage]string{
	StageClippingSuppression: "CLIPPING_SUPPRESSION",
	StageWienerDeconv:        "WIENER_DECONV",
	StageSharpen:             "SHARPEN",
	StageRotate:              "ROTATE",
	StageSigmaDenoise1:       "SIGMA_DENOISE_1",
	StageIansNR:              "IANS_NR",
	StageBilateralDenoise:    "BILATERAL_DENOISE",
	StageROFDenoise:          "ROF_DENOISE",
	StageSigmaDenoise2:       "SIGMA_DENOISE_2",
	StageSavitzkyGolay:       "SAVITZKY_GOLAY",
	StageEqualizeLocally:     "EQUALIZE_LOCALLY",
	StageLocalContrast:       "LOCAL_CONTRAST",
	StageGamma:               "GAMMA",
	StageColorNormalize:      "COLOR_NORMALIZE",
	StageRGBBalance:          "RGB_BALANCE",
	StageSaturation:          "SATURATION",
	StageDispersion:          "DISPERSION",
	StageHistogramStretch:    "HISTOGRAM_STRETCH",
	StagePSF:                 "PSF",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STAGE(%d)", int(s))
}

// Order returns every real stage in execution order
func Order() []Stage {
	out := make([]Stage, 0, numStages)
	for s := Stage(0); s < numStages; s++ {
		out = append(out, s)
	}
	return out
}

// ParseStage accepts stage names case-insensitively, with '-' or '_'
func ParseStage(name string) (Stage, error) {
	want := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	for s, n := range stageNames {
		if n == want {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownStage)
}

// ParseStages parses a comma separated list, empty entries are ignored
func ParseStages(list string) ([]Stage, error) {
	var out []Stage
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := ParseStage(part)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
