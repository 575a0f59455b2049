package engine

// RGB is a fill color without alpha.
type RGB [3]uint8

// Style is the fill a building is drawn with.
type Style struct {
	Color RGB
	Alpha uint8
}

// RGBA flattens the style into the [r, g, b, a] form renderers take.
func (s Style) RGBA() [4]uint8 {
	return [4]uint8{s.Color[0], s.Color[1], s.Color[2], s.Alpha}
}

// BaseColor is shared by every construction period; only alpha varies.
var BaseColor = RGB{180, 48, 150}

// FallbackAlpha is used for "NA", empty and unknown periods.
const FallbackAlpha uint8 = 20

// DefaultStyle is what every row gets when no category column was loaded.
var DefaultStyle = Style{Color: BaseColor, Alpha: FallbackAlpha}

// Construction periods from oldest to newest. Older stock is drawn denser.
var periodAlphas = []struct {
	label string
	alpha uint8
}{
	{"antes de 1919", 255},
	{"1919-1945", 220},
	{"1946-1960", 200},
	{"1961-1970", 180},
	{"1971-1980", 160},
	{"1981-1990", 140},
	{"1991-1995", 120},
	{"1996-2000", 100},
	{"2001-2005", 80},
	{"2006-2011", 80},
}

var periodSlot = func() map[string]int {
	m := make(map[string]int, len(periodAlphas))
	for i, p := range periodAlphas {
		m[p.label] = i
	}
	return m
}()

// Periods returns the known construction period labels, oldest first.
func Periods() []string {
	out := make([]string, len(periodAlphas))
	for i, p := range periodAlphas {
		out[i] = p.label
	}
	return out
}

// StyleFor maps a construction period label to its fill. It is total:
// anything not in the period table gets DefaultStyle.
func StyleFor(category string) Style {
	return Style{Color: BaseColor, Alpha: alphaOfSlot(slotOf(category))}
}

// slotOf returns the period table index of category, or len(periodAlphas)
// for the fallback bucket.
func slotOf(category string) int {
	if i, ok := periodSlot[category]; ok {
		return i
	}
	return len(periodAlphas)
}

func alphaOfSlot(slot int) uint8 {
	if slot < len(periodAlphas) {
		return periodAlphas[slot].alpha
	}
	return FallbackAlpha
}
