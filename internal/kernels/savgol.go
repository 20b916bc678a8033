package kernels

// Savitzky-Golay smoothing stencils indexed by half width. The 5×5, 7×7 and
// 9×9 tables are the published ones with divisors 2447, 4287 and 9253; the
// 11×11 and 13×13 tables extend the set for very soft smoothing.

// verticallySymmetric expands the rows down to and including the centre row
// into a full square table.
func verticallySymmetric(upper [][]int) []int {
	size := len(upper[0])
	out := make([]int, 0, size*size)
	for _, row := range upper {
		out = append(out, row...)
	}
	for i := len(upper) - 2; i >= 0; i-- {
		out = append(out, upper[i]...)
	}
	return out
}

var savitzkyGolayStencils = map[int]Stencil{
	2: {
		Name: "savitzky-golay 5x5",
		Size: 5,
		Weights: verticallySymmetric([][]int{
			{-4, -22, -29, -22, -4},
			{-22, 114, 226, 114, -22},
			{-29, 226, 1395, 226, -29},
		}),
		Divisor: 2447,
	},
	3: {
		Name: "savitzky-golay 7x7",
		Size: 7,
		Weights: verticallySymmetric([][]int{
			{0, -14, -33, -39, -33, -14, 0},
			{-14, -22, 59, 86, 59, -22, -14},
			{-33, 59, 233, 346, 233, 59, -33},
			{-39, 86, 346, 1775, 346, 86, -39},
		}),
		Divisor: 4287,
	},
	4: {
		Name: "savitzky-golay 9x9",
		Size: 9,
		Weights: verticallySymmetric([][]int{
			{0, -2, -32, -54, -62, -54, -32, -2, 0},
			{-2, -49, -22, 35, 54, 35, -22, -49, -2},
			{-32, -22, 80, 194, 230, 194, 80, -22, -32},
			{-54, 35, 194, 446, 631, 446, 194, 35, -54},
			{-62, 54, 230, 631, 2981, 631, 230, 54, -62},
		}),
		Divisor: 9253,
	},
	5: {
		Name: "savitzky-golay 11x11",
		Size: 11,
		Weights: verticallySymmetric([][]int{
			{0, 0, -18, -81, -119, -132, -119, -81, -18, 0, 0},
			{0, -39, -120, -42, 20, 40, 20, -42, -120, -39, 0},
			{-18, -120, 5, 122, 234, 267, 234, 122, 5, -120, -18},
			{-81, -42, 122, 320, 551, 629, 551, 320, 122, -42, -81},
			{-119, 20, 234, 551, 1133, 1522, 1133, 551, 234, 20, -119},
			{-132, 40, 267, 629, 1522, 10633, 1522, 629, 267, 40, -132},
		}),
		Divisor: 29989,
	},
	6: {
		Name: "savitzky-golay 13x13",
		Size: 13,
		Weights: verticallySymmetric([][]int{
			{0, 0, 0, -30, -79, -107, -117, -107, -79, -30, 0, 0, 0},
			{0, -2, -71, -101, -45, -12, -1, -12, -45, -101, -71, -2, 0},
			{0, -71, -83, 1, 74, 126, 143, 126, 74, 1, -83, -71, 0},
			{-30, -101, 1, 114, 213, 309, 338, 309, 213, 114, 1, -101, -30},
			{-79, -45, 74, 213, 386, 595, 665, 595, 386, 213, 74, -45, -79},
			{-107, -12, 126, 309, 595, 1141, 1509, 1141, 595, 309, 126, -12, -107},
			{-117, -1, 143, 338, 665, 1509, 10365, 1509, 665, 338, 143, -1, -117},
		}),
		Divisor: 33721,
	},
}

// SavitzkyGolay returns the stencil for a half width between 2 and 6
func SavitzkyGolay(halfWidth int) (Stencil, bool) {
	s, ok := savitzkyGolayStencils[halfWidth]
	return s, ok
}

// SavitzkyGolaySizes lists the supported half widths in ascending order
func SavitzkyGolaySizes() []int {
	return []int{2, 3, 4, 5, 6}
}
