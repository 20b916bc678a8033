package config

import (
	"astro-restoration/internal/core"
)

// SharpenChannel is the unsharp-mask parameter set of one colour channel
type SharpenChannel struct {
	Radius           float64
	Amount           float64
	Iterations       int
	ClippingStrength int
	ClippingRange    int
	DeringRadius     float64
	DeringStrength   int
	DeringThreshold  int
	BlendRaw         int
}

// Sharpen returns the sharpen parameters of channel c
func (p *Profile) Sharpen(c core.Channel) SharpenChannel {
	base := SharpenChannel{
		Radius:           p.Radius,
		Amount:           p.Amount,
		Iterations:       atLeastOne(p.Iterations),
		ClippingStrength: p.ClippingStrength,
		ClippingRange:    p.ClippingRange,
		DeringRadius:     p.DeringRadius,
		DeringStrength:   p.DeringStrength,
		DeringThreshold:  p.DeringThreshold,
		BlendRaw:         p.BlendRaw,
	}
	switch c {
	case core.Green:
		return SharpenChannel{
			Radius:           orFloat(p.RadiusGreen, base.Radius),
			Amount:           orFloat(p.AmountGreen, base.Amount),
			Iterations:       atLeastOne(orInt(p.IterationsGreen, base.Iterations)),
			ClippingStrength: orInt(p.ClippingStrengthGreen, base.ClippingStrength),
			ClippingRange:    orInt(p.ClippingRangeGreen, base.ClippingRange),
			DeringRadius:     orFloat(p.DeringRadiusGreen, base.DeringRadius),
			DeringStrength:   orInt(p.DeringStrengthGreen, base.DeringStrength),
			DeringThreshold:  base.DeringThreshold,
			BlendRaw:         orInt(p.BlendRawGreen, base.BlendRaw),
		}
	case core.Blue:
		return SharpenChannel{
			Radius:           orFloat(p.RadiusBlue, base.Radius),
			Amount:           orFloat(p.AmountBlue, base.Amount),
			Iterations:       atLeastOne(orInt(p.IterationsBlue, base.Iterations)),
			ClippingStrength: orInt(p.ClippingStrengthBlue, base.ClippingStrength),
			ClippingRange:    orInt(p.ClippingRangeBlue, base.ClippingRange),
			DeringRadius:     orFloat(p.DeringRadiusBlue, base.DeringRadius),
			DeringStrength:   orInt(p.DeringStrengthBlue, base.DeringStrength),
			DeringThreshold:  base.DeringThreshold,
			BlendRaw:         orInt(p.BlendRawBlue, base.BlendRaw),
		}
	}
	return base
}

// WienerIterationsFor returns the Landweber iteration count of channel c
func (p *Profile) WienerIterationsFor(c core.Channel) int {
	switch c {
	case core.Green:
		return orInt(p.WienerIterationsGreen, p.WienerIterations)
	case core.Blue:
		return orInt(p.WienerIterationsBlue, p.WienerIterations)
	}
	return p.WienerIterations
}

// SigmaChannel holds radius, amount and iteration count of a sigma pass
type SigmaChannel struct {
	Radius     float64
	Amount     float64
	Iterations int
}

// Denoise1 returns the first-slot sigma parameters of channel c
func (p *Profile) Denoise1(c core.Channel) SigmaChannel {
	s := SigmaChannel{Radius: p.Denoise1Radius, Amount: p.Denoise1Amount, Iterations: p.Denoise1Iterations}
	switch c {
	case core.Green:
		s = SigmaChannel{
			Radius:     orFloat(p.Denoise1RadiusGreen, s.Radius),
			Amount:     orFloat(p.Denoise1AmountGreen, s.Amount),
			Iterations: orInt(p.Denoise1IterationsGreen, s.Iterations),
		}
	case core.Blue:
		s = SigmaChannel{
			Radius:     orFloat(p.Denoise1RadiusBlue, s.Radius),
			Amount:     orFloat(p.Denoise1AmountBlue, s.Amount),
			Iterations: orInt(p.Denoise1IterationsBlue, s.Iterations),
		}
	}
	s.Iterations = atLeastOne(s.Iterations)
	return s
}

// Denoise2 returns the second-slot sigma parameters of channel c
func (p *Profile) Denoise2(c core.Channel) SigmaChannel {
	s := SigmaChannel{Radius: p.Denoise2Radius, Iterations: p.Denoise2Iterations}
	switch c {
	case core.Green:
		s.Radius = orFloat(p.Denoise2RadiusGreen, s.Radius)
		s.Iterations = orInt(p.Denoise2IterationsGreen, s.Iterations)
	case core.Blue:
		s.Radius = orFloat(p.Denoise2RadiusBlue, s.Radius)
		s.Iterations = orInt(p.Denoise2IterationsBlue, s.Iterations)
	}
	s.Iterations = atLeastOne(s.Iterations)
	return s
}

// BilateralChannel holds the bilateral filter parameters of one channel
type BilateralChannel struct {
	SigmaColor int
	SigmaSpace int
	Radius     int
	Iterations int
}

// Bilateral returns the bilateral parameters of channel c
func (p *Profile) Bilateral(c core.Channel) BilateralChannel {
	b := BilateralChannel{
		SigmaColor: p.BilateralSigmaColor,
		SigmaSpace: p.BilateralSigmaSpace,
		Radius:     p.BilateralRadius,
		Iterations: p.BilateralIterations,
	}
	switch c {
	case core.Green:
		b = BilateralChannel{
			SigmaColor: orInt(p.BilateralSigmaColorGreen, b.SigmaColor),
			SigmaSpace: orInt(p.BilateralSigmaSpaceGreen, b.SigmaSpace),
			Radius:     orInt(p.BilateralRadiusGreen, b.Radius),
			Iterations: orInt(p.BilateralIterationsGreen, b.Iterations),
		}
	case core.Blue:
		b = BilateralChannel{
			SigmaColor: orInt(p.BilateralSigmaColorBlue, b.SigmaColor),
			SigmaSpace: orInt(p.BilateralSigmaSpaceBlue, b.SigmaSpace),
			Radius:     orInt(p.BilateralRadiusBlue, b.Radius),
			Iterations: orInt(p.BilateralIterationsBlue, b.Iterations),
		}
	}
	if b.SigmaSpace <= 0 {
		b.SigmaSpace = 1
	}
	b.Iterations = atLeastOne(b.Iterations)
	return b
}

// ROFChannel holds the total-variation parameters of one channel
type ROFChannel struct {
	Theta      int
	Iterations int
}

// ROF returns the total-variation parameters of channel c
func (p *Profile) ROF(c core.Channel) ROFChannel {
	r := ROFChannel{Theta: p.RofTheta, Iterations: p.RofIterations}
	switch c {
	case core.Green:
		r = ROFChannel{Theta: orInt(p.RofThetaGreen, r.Theta), Iterations: orInt(p.RofIterationsGreen, r.Iterations)}
	case core.Blue:
		r = ROFChannel{Theta: orInt(p.RofThetaBlue, r.Theta), Iterations: orInt(p.RofIterationsBlue, r.Iterations)}
	}
	r.Iterations = atLeastOne(r.Iterations)
	return r
}

// SavitzkyGolayChannel holds the smoothing parameters of one channel
type SavitzkyGolayChannel struct {
	Size       int
	Amount     int
	Iterations int
}

// SavitzkyGolay returns the smoothing parameters of channel c
func (p *Profile) SavitzkyGolay(c core.Channel) SavitzkyGolayChannel {
	s := SavitzkyGolayChannel{Size: p.SavitzkyGolaySize, Amount: p.SavitzkyGolayAmount, Iterations: p.SavitzkyGolayIterations}
	switch c {
	case core.Green:
		s = SavitzkyGolayChannel{
			Size:       orInt(p.SavitzkyGolaySizeGreen, s.Size),
			Amount:     orInt(p.SavitzkyGolayAmountGreen, s.Amount),
			Iterations: orInt(p.SavitzkyGolayIterationsGreen, s.Iterations),
		}
	case core.Blue:
		s = SavitzkyGolayChannel{
			Size:       orInt(p.SavitzkyGolaySizeBlue, s.Size),
			Amount:     orInt(p.SavitzkyGolayAmountBlue, s.Amount),
			Iterations: orInt(p.SavitzkyGolayIterationsBlue, s.Iterations),
		}
	}
	s.Iterations = atLeastOne(s.Iterations)
	return s
}

// LuminanceIncludes reports which channels feed the luminance estimate.
// ok is false when all three were excluded and the set was reset to all.
func (p *Profile) LuminanceIncludes() (include [core.NumChannels]bool, ok bool) {
	include = [core.NumChannels]bool{p.LuminanceIncludeRed, p.LuminanceIncludeGreen, p.LuminanceIncludeBlue}
	if !include[0] && !include[1] && !include[2] {
		return [core.NumChannels]bool{true, true, true}, false
	}
	return include, true
}
