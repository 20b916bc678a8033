// Profile holds every filter parameter of one processing run
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sharpen and local contrast modes
const (
	ModeLuminance = "LUMINANCE"
	ModeRGB       = "RGB"
)

// Denoise algorithm selectors
const (
	DenoiseOff       = "OFF"
	DenoiseSigma1    = "SIGMA1"
	DenoiseSigma2    = "SIGMA2"
	DenoiseBilateral = "BILATERAL"
	DenoiseROF       = "ROF"
	DenoiseIans      = "IANS"
	DenoiseSavGolay  = "SAVGOLAY"
)

// PSF types
const (
	PSFSynthetic = "SYNTHETIC"
	PSFCustom    = "CUSTOM"
)

var ErrInvalidProfile = errors.New("invalid profile")

// PSF describes the point spread function used by the Wiener deconvolution
type PSF struct {
	AiryDiskRadius       float64 `yaml:"airyDiskRadius"`
	SeeingIndex          float64 `yaml:"seeingIndex"`
	DiffractionIntensity float64 `yaml:"diffractionIntensity"`
	Type                 string  `yaml:"type"`
	CustomPath           string  `yaml:"customPath,omitempty"`
}

// Profile is read-only for the pipeline. Green and blue variants of a
// per-channel parameter fall back to the base value when left at zero.
type Profile struct {
	Name string `yaml:"name"`

	// Unsharp mask
	ApplyUnsharpMask      bool    `yaml:"applyUnsharpMask"`
	SharpenMode           string  `yaml:"sharpenMode"`
	Radius                float64 `yaml:"radius"`
	Amount                float64 `yaml:"amount"`
	Iterations            int     `yaml:"iterations"`
	ClippingStrength      int     `yaml:"clippingStrength"`
	ClippingRange         int     `yaml:"clippingRange"`
	DeringRadius          float64 `yaml:"deringRadius"`
	DeringStrength        int     `yaml:"deringStrength"`
	DeringThreshold       int     `yaml:"deringThreshold"`
	BlendRaw              int     `yaml:"blendRaw"`
	RadiusGreen           float64 `yaml:"radiusGreen"`
	AmountGreen           float64 `yaml:"amountGreen"`
	IterationsGreen       int     `yaml:"iterationsGreen"`
	ClippingStrengthGreen int     `yaml:"clippingStrengthGreen"`
	ClippingRangeGreen    int     `yaml:"clippingRangeGreen"`
	DeringRadiusGreen     float64 `yaml:"deringRadiusGreen"`
	DeringStrengthGreen   int     `yaml:"deringStrengthGreen"`
	BlendRawGreen         int     `yaml:"blendRawGreen"`
	RadiusBlue            float64 `yaml:"radiusBlue"`
	AmountBlue            float64 `yaml:"amountBlue"`
	IterationsBlue        int     `yaml:"iterationsBlue"`
	ClippingStrengthBlue  int     `yaml:"clippingStrengthBlue"`
	ClippingRangeBlue     int     `yaml:"clippingRangeBlue"`
	DeringRadiusBlue      float64 `yaml:"deringRadiusBlue"`
	DeringStrengthBlue    int     `yaml:"deringStrengthBlue"`
	BlendRawBlue          int     `yaml:"blendRawBlue"`
	LuminanceIncludeRed   bool    `yaml:"luminanceIncludeRed"`
	LuminanceIncludeGreen bool    `yaml:"luminanceIncludeGreen"`
	LuminanceIncludeBlue  bool    `yaml:"luminanceIncludeBlue"`
	LuminanceIncludeColor bool    `yaml:"luminanceIncludeColor"`

	// Wiener deconvolution
	ApplyWienerDeconvolution bool `yaml:"applyWienerDeconvolution"`
	WienerIterations         int  `yaml:"wienerIterations"`
	WienerIterationsGreen    int  `yaml:"wienerIterationsGreen"`
	WienerIterationsBlue     int  `yaml:"wienerIterationsBlue"`
	WienerRepetitions        int  `yaml:"wienerRepetitions"`
	PSF                      PSF  `yaml:"psf"`

	// Denoise, first slot
	DenoiseAlgorithm1         string  `yaml:"denoiseAlgorithm1"`
	Denoise1Amount            float64 `yaml:"denoise1Amount"`
	Denoise1Radius            float64 `yaml:"denoise1Radius"`
	Denoise1Iterations        int     `yaml:"denoise1Iterations"`
	Denoise1AmountGreen       float64 `yaml:"denoise1AmountGreen"`
	Denoise1RadiusGreen       float64 `yaml:"denoise1RadiusGreen"`
	Denoise1IterationsGreen   int     `yaml:"denoise1IterationsGreen"`
	Denoise1AmountBlue        float64 `yaml:"denoise1AmountBlue"`
	Denoise1RadiusBlue        float64 `yaml:"denoise1RadiusBlue"`
	Denoise1IterationsBlue    int     `yaml:"denoise1IterationsBlue"`
	BilateralSigmaColor       int     `yaml:"bilateralSigmaColor"`
	BilateralSigmaSpace       int     `yaml:"bilateralSigmaSpace"`
	BilateralRadius           int     `yaml:"bilateralRadius"`
	BilateralIterations       int     `yaml:"bilateralIterations"`
	BilateralSigmaColorGreen  int     `yaml:"bilateralSigmaColorGreen"`
	BilateralSigmaSpaceGreen  int     `yaml:"bilateralSigmaSpaceGreen"`
	BilateralRadiusGreen      int     `yaml:"bilateralRadiusGreen"`
	BilateralIterationsGreen  int     `yaml:"bilateralIterationsGreen"`
	BilateralSigmaColorBlue   int     `yaml:"bilateralSigmaColorBlue"`
	BilateralSigmaSpaceBlue   int     `yaml:"bilateralSigmaSpaceBlue"`
	BilateralRadiusBlue       int     `yaml:"bilateralRadiusBlue"`
	BilateralIterationsBlue   int     `yaml:"bilateralIterationsBlue"`
	RofTheta                  int     `yaml:"rofTheta"`
	RofIterations             int     `yaml:"rofIterations"`
	RofThetaGreen             int     `yaml:"rofThetaGreen"`
	RofIterationsGreen        int     `yaml:"rofIterationsGreen"`
	RofThetaBlue              int     `yaml:"rofThetaBlue"`
	RofIterationsBlue         int     `yaml:"rofIterationsBlue"`
	IansAmount                float64 `yaml:"iansAmount"`
	IansAmountMid             float64 `yaml:"iansAmountMid"`
	IansRecovery              float64 `yaml:"iansRecovery"`
	IansIterations            int     `yaml:"iansIterations"`

	// Denoise, second slot
	DenoiseAlgorithm2            string  `yaml:"denoiseAlgorithm2"`
	Denoise2Radius               float64 `yaml:"denoise2Radius"`
	Denoise2Iterations           int     `yaml:"denoise2Iterations"`
	Denoise2RadiusGreen          float64 `yaml:"denoise2RadiusGreen"`
	Denoise2IterationsGreen      int     `yaml:"denoise2IterationsGreen"`
	Denoise2RadiusBlue           float64 `yaml:"denoise2RadiusBlue"`
	Denoise2IterationsBlue       int     `yaml:"denoise2IterationsBlue"`
	SavitzkyGolaySize            int     `yaml:"savitzkyGolaySize"`
	SavitzkyGolayAmount          int     `yaml:"savitzkyGolayAmount"`
	SavitzkyGolayIterations      int     `yaml:"savitzkyGolayIterations"`
	SavitzkyGolaySizeGreen       int     `yaml:"savitzkyGolaySizeGreen"`
	SavitzkyGolayAmountGreen     int     `yaml:"savitzkyGolayAmountGreen"`
	SavitzkyGolayIterationsGreen int     `yaml:"savitzkyGolayIterationsGreen"`
	SavitzkyGolaySizeBlue        int     `yaml:"savitzkyGolaySizeBlue"`
	SavitzkyGolayAmountBlue      int     `yaml:"savitzkyGolayAmountBlue"`
	SavitzkyGolayIterationsBlue  int     `yaml:"savitzkyGolayIterationsBlue"`

	// Tone and colour
	Gamma                           float64 `yaml:"gamma"`
	Contrast                        int     `yaml:"contrast"`
	Brightness                      int     `yaml:"brightness"`
	Lightness                       int     `yaml:"lightness"`
	Background                      int     `yaml:"background"`
	PreserveDarkBackground          bool    `yaml:"preserveDarkBackground"`
	LocalContrastMode               string  `yaml:"localContrastMode"`
	LocalContrastFine               int     `yaml:"localContrastFine"`
	LocalContrastMedium             int     `yaml:"localContrastMedium"`
	LocalContrastLarge              int     `yaml:"localContrastLarge"`
	ClippingSuppression             float64 `yaml:"clippingSuppression"`
	Red                             float64 `yaml:"red"`
	Green                           float64 `yaml:"green"`
	Blue                            float64 `yaml:"blue"`
	Purple                          float64 `yaml:"purple"`
	Saturation                      float64 `yaml:"saturation"`
	DispersionCorrectionEnabled     bool    `yaml:"dispersionCorrectionEnabled"`
	DispersionCorrectionRedX        int     `yaml:"dispersionCorrectionRedX"`
	DispersionCorrectionRedY        int     `yaml:"dispersionCorrectionRedY"`
	DispersionCorrectionBlueX       int     `yaml:"dispersionCorrectionBlueX"`
	DispersionCorrectionBlueY       int     `yaml:"dispersionCorrectionBlueY"`
	NormalizeColorBalance           bool    `yaml:"normalizeColorBalance"`
	RotationAngle                   float64 `yaml:"rotationAngle"`
	EqualizeLocalHistogramsStrength int     `yaml:"equalizeLocalHistogramsStrength"`
}

// DefaultProfile returns a neutral profile with sensible planetary defaults.
// Only sharpening is enabled.
func DefaultProfile() *Profile {
	return &Profile{
		Name:                  "default",
		ApplyUnsharpMask:      true,
		SharpenMode:           ModeLuminance,
		Radius:                1.5,
		Amount:                5000,
		Iterations:            1,
		ClippingRange:         50,
		DeringRadius:          3,
		DeringThreshold:       4,
		LuminanceIncludeRed:   true,
		LuminanceIncludeGreen: true,
		LuminanceIncludeBlue:  true,
		LuminanceIncludeColor: true,
		WienerIterations:      10,
		WienerRepetitions:     1,
		PSF: PSF{
			AiryDiskRadius:       2,
			SeeingIndex:          0.1,
			DiffractionIntensity: 20,
			Type:                 PSFSynthetic,
		},
		DenoiseAlgorithm1:   DenoiseOff,
		Denoise1Amount:      50,
		Denoise1Radius:      1,
		Denoise1Iterations:  1,
		BilateralSigmaColor: 20,
		BilateralSigmaSpace: 1,
		BilateralRadius:     2,
		BilateralIterations: 1,
		RofTheta:            2,
		RofIterations:       5,
		IansAmount:          10,
		IansAmountMid:       5,
		IansIterations:      1,
		DenoiseAlgorithm2:   DenoiseOff,
		Denoise2Radius:      1,
		Denoise2Iterations:  1,
		SavitzkyGolaySize:   2,
		SavitzkyGolayAmount: 100,
		Gamma:               1,
		LocalContrastMode:   ModeLuminance,
		Saturation:          1,
	}
}

// LoadProfile reads a YAML profile. Fields missing from the file keep their defaults.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes YAML on top of DefaultProfile and validates the result
func ParseProfile(data []byte) (*Profile, error) {
	p := DefaultProfile()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveProfile writes p as YAML
func SaveProfile(path string, p *Profile) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile %s: %w", path, err)
	}
	return nil
}

func (p *Profile) normalize() {
	p.SharpenMode = strings.ToUpper(strings.TrimSpace(p.SharpenMode))
	p.LocalContrastMode = strings.ToUpper(strings.TrimSpace(p.LocalContrastMode))
	p.DenoiseAlgorithm1 = strings.ToUpper(strings.TrimSpace(p.DenoiseAlgorithm1))
	p.DenoiseAlgorithm2 = strings.ToUpper(strings.TrimSpace(p.DenoiseAlgorithm2))
	p.PSF.Type = strings.ToUpper(strings.TrimSpace(p.PSF.Type))
	if p.SharpenMode == "" {
		p.SharpenMode = ModeLuminance
	}
	if p.LocalContrastMode == "" {
		p.LocalContrastMode = ModeLuminance
	}
	if p.DenoiseAlgorithm1 == "" {
		p.DenoiseAlgorithm1 = DenoiseOff
	}
	if p.DenoiseAlgorithm2 == "" {
		p.DenoiseAlgorithm2 = DenoiseOff
	}
	if p.PSF.Type == "" {
		p.PSF.Type = PSFSynthetic
	}
}

// Validate checks parameter ranges
func (p *Profile) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(p.SharpenMode == ModeLuminance || p.SharpenMode == ModeRGB, "sharpenMode %q", p.SharpenMode)
	check(p.LocalContrastMode == ModeLuminance || p.LocalContrastMode == ModeRGB, "localContrastMode %q", p.LocalContrastMode)
	for _, a := range []float64{p.Amount, p.AmountGreen, p.AmountBlue} {
		check(a >= 0 && a < 10000, "amount %v outside [0, 10000)", a)
	}
	for _, r := range []float64{p.Radius, p.RadiusGreen, p.RadiusBlue, p.DeringRadius, p.Denoise1Radius, p.Denoise2Radius} {
		check(r >= 0, "negative radius %v", r)
	}
	for _, r := range []int{p.ClippingRange, p.ClippingRangeGreen, p.ClippingRangeBlue} {
		check(r >= 0 && r <= 100, "clippingRange %d outside [0, 100]", r)
	}
	check(p.DeringThreshold >= 0, "deringThreshold %d", p.DeringThreshold)
	switch p.DenoiseAlgorithm1 {
	case DenoiseOff, DenoiseSigma1, DenoiseBilateral, DenoiseROF, DenoiseIans:
	default:
		check(false, "denoiseAlgorithm1 %q", p.DenoiseAlgorithm1)
	}
	switch p.DenoiseAlgorithm2 {
	case DenoiseOff, DenoiseSigma2, DenoiseSavGolay:
	default:
		check(false, "denoiseAlgorithm2 %q", p.DenoiseAlgorithm2)
	}
	for _, s := range []int{p.SavitzkyGolaySize, p.SavitzkyGolaySizeGreen, p.SavitzkyGolaySizeBlue} {
		check(s == 0 || (s >= 2 && s <= 6), "savitzkyGolaySize %d", s)
	}
	for _, a := range []int{p.SavitzkyGolayAmount, p.SavitzkyGolayAmountGreen, p.SavitzkyGolayAmountBlue} {
		check(a >= 0 && a <= 100, "savitzkyGolayAmount %d", a)
	}
	check(p.Gamma >= 0 && p.Gamma <= 2, "gamma %v outside [0, 2]", p.Gamma)
	check(p.Saturation >= 0, "saturation %v", p.Saturation)
	check(p.PSF.Type == PSFSynthetic || p.PSF.Type == PSFCustom, "psf type %q", p.PSF.Type)
	check(p.PSF.SeeingIndex >= 0 && p.PSF.SeeingIndex <= 1, "psf seeingIndex %v outside [0, 1]", p.PSF.SeeingIndex)
	check(p.WienerRepetitions >= 0, "wienerRepetitions %d", p.WienerRepetitions)

	if len(problems) > 0 {
		return fmt.Errorf("%s: %w", strings.Join(problems, "; "), ErrInvalidProfile)
	}
	return nil
}

// Clone returns an independent copy
func (p *Profile) Clone() *Profile {
	cp := *p
	return &cp
}

// orFloat returns v, or fallback when v is zero
func orFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

// orInt returns v, or fallback when v is zero
func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// atLeastOne treats zero iteration counts as a single iteration
func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
