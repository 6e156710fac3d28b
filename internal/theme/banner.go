package theme

import (
	"fmt"
	"io"
)

const (
	cyan   = "\033[36m"
	yellow = "\033[33m"
	reset  = "\033[0m"
)

// Banner returns the tweetnorm banner. Colors are skipped when plain is set.
func Banner(plain bool) string {
	c, y, r := cyan, yellow, reset
	if plain {
		c, y, r = "", "", ""
	}
	return c + "  ┌┬┐┬ ┬┌─┐┌─┐┌┬┐┌┐┌┌─┐┬─┐┌┬┐\n" +
		"   │ │││├┤ ├┤  │ ││││ │├┬┘│││\n" +
		"   ┴ └┴┘└─┘└─┘ ┴ ┘└┘└─┘┴└─┴ ┴\n" + r +
		y + "  ────────────────────────────\n" + r +
		"  tweet archives into relational tables\n"
}

// PrintBanner writes the banner to w.
func PrintBanner(w io.Writer, plain bool) {
	fmt.Fprint(w, Banner(plain))
}
