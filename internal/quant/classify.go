package quant

// Gray returns the 8-bit luma of an RGB triple, weighted toward green.
func Gray(r, g, b uint8) int {
	return (int(b) + int(r) + 2*int(g)) >> 2
}

// Classify maps an RGB value to the nearest code of the class palette.
// The comparison chains are ordered by precedence with empirically
// tuned constants; reordering them changes which rule wins on
// borderline pixels, so they must stay exactly as written.
func (c Class) Classify(r, g, b uint8) uint8 {
	switch c {
	case BW:
		if Gray(r, g, b) >= 100 {
			return 1
		}
		return 0
	case BWR:
		return classifyRed(r, g, b)
	case BWY:
		return classifyYellow(r, g, b)
	case BWYR:
		return classifyYellowRed(r, g, b)
	default: // Gray4: top two bits of the gray value
		return uint8(Gray(r, g, b) >> 6)
	}
}

// classifyRed matches a pixel to black (0), white (1) or red (2).
func classifyRed(r, g, b uint8) uint8 {
	gr := Gray(r, g, b)
	ri, gi, bi := int(r), int(g), int(b)
	if ri > gi && ri > bi { // red dominant
		if gr < 100 && ri < 80 {
			return 0
		}
		if ri-bi > 32 && ri-gi > 32 {
			return 2
		}
		// pink and washed-out tones go to white, not red
		return 1
	}
	if gr >= 100 {
		return 1
	}
	return 0
}

// classifyYellow matches a pixel to black (0), white (1) or yellow (2).
func classifyYellow(r, g, b uint8) uint8 {
	gr := Gray(r, g, b)
	ri, gi, bi := int(r), int(g), int(b)
	if ri > bi && gi > bi { // yellow dominant
		if gr < 100 && ri < 80 {
			return 0
		}
		if ri-bi > 32 && gi-bi > 32 {
			return 2
		}
		return 1
	}
	if gr >= 100 {
		return 1
	}
	return 0
}

// classifyYellowRed matches a pixel to black (0), white (1), yellow (2)
// or red (3).
func classifyYellowRed(r, g, b uint8) uint8 {
	gr := Gray(r, g, b)
	ri, gi, bi := int(r), int(g), int(b)
	if ri > bi || gi > bi { // warm side of the palette
		if gr < 90 || (ri < 80 && gi < 80) {
			return 0
		}
		if ri-bi > 32 && ri-gi > 70 {
			return 3
		}
		if ri-bi > 32 && gi-bi > 32 {
			return 2
		}
		return 1
	}
	if gr >= 100 {
		return 1
	}
	return 0
}

// Nearest quantizes an RGB value to the class palette and returns the
// representative color of the matched code. Error diffusion uses this
// as the output value it measures residuals against.
func (c Class) Nearest(r, g, b uint8) (uint8, uint8, uint8) {
	rep := c.Representatives()[c.Classify(r, g, b)]
	return rep.R, rep.G, rep.B
}
