package types

// IsColor reports whether c is a "#RRGGBB" hex color.
func IsColor(c string) bool {
	if len(c) != 7 || c[0] != '#' {
		return false
	}
	for i := 1; i < len(c); i++ {
		if !isHexCharacter(c[i]) {
			return false
		}
	}
	return true
}
