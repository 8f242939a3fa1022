// Package treeid renders the hierarchical addresses and display strings used
// in the output rows: Roman numeral per process, 1-based integer per print,
// letter per attachment, dot-index per archive nesting level.
package treeid

import (
	"fmt"
	"strings"
)

var (
	romanValues  = []int{1000, 900, 500, 400, 100, 90, 50, 40, 10, 9, 5, 4, 1}
	romanSymbols = []string{"M", "CM", "D", "CD", "C", "XC", "L", "XL", "X", "IX", "V", "IV", "I"}
)

// Roman renders n as an uppercase Roman numeral. Values below 1 yield "".
func Roman(n int) string {
	var b strings.Builder
	for i, v := range romanValues {
		for n >= v {
			b.WriteString(romanSymbols[i])
			n -= v
		}
	}
	return b.String()
}

// Letter renders a 0-based attachment ordinal as A..Z, falling back to a
// numeric form past 26 so addresses stay unique for absurdly long prints.
func Letter(n int) string {
	if n < 26 {
		return string(rune('A' + n))
	}
	return fmt.Sprintf("Z%d", n)
}

// Child appends an ordinal to a parent address.
func Child(parent, ordinal string) string {
	return parent + "." + ordinal
}

// ProcessDisplay renders the structure-tree string for a process root row.
func ProcessDisplay(num, title string) string {
	return fmt.Sprintf("📂 [%s] %s...", num, truncate(title, 150))
}

// PrintDisplay renders the structure-tree string for a print branch row.
func PrintDisplay(printNumber int) string {
	return fmt.Sprintf("    ├── 📁 Druk nr %d", printNumber)
}

// AttachmentDisplay renders the structure-tree string for an attachment leaf.
func AttachmentDisplay(filename string) string {
	return fmt.Sprintf("        └── 📄 %s", filename)
}

// NestedDisplay renders an archive-nested entry one indent level deeper than
// its parent display string.
func NestedDisplay(parentDisplay, name string) string {
	return parentDisplay + " ↳ " + name
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
