package api

import (
	"fmt"
	"regexp"
	"strings"
)

var cssClassInvalidChars = regexp.MustCompile(`[^a-zA-Z\-_]`)

// cssRule carries the stylesheet values a caller needs to address one sprite
// inside the composited atlas.
type cssRule struct {
	Class              string `json:"class"`
	BackgroundPosition string `json:"backgroundPosition"`
	Width              string `json:"width"`
	Height             string `json:"height"`
}

// cssRulesFor builds one rule per placement. Class names stay unique within
// the sheet: cssClassName drops digits, so "icon1" and "icon2" would both
// become "sheet-icon", and later collisions get a numeric suffix ("sheet-icon-2").
func cssRulesFor(sheetName string, placements []placementPayload) []cssRule {
	rules := make([]cssRule, len(placements))
	seen := make(map[string]int, len(placements))
	for i, p := range placements {
		class := cssClassName(sheetName, p.ID)
		seen[class]++
		if n := seen[class]; n > 1 {
			class = fmt.Sprintf("%s-%d", class, n)
		}
		rules[i] = cssRule{
			Class:              class,
			BackgroundPosition: fmt.Sprintf("%dpx %dpx", -p.X, -p.Y),
			Width:              fmt.Sprintf("%dpx", p.Width),
			Height:             fmt.Sprintf("%dpx", p.Height),
		}
	}
	return rules
}

// cssClassName joins sheet and sprite names and keeps only letters, dashes and
// underscores. Spaces and dots become dashes first so "arrow.png" reads as
// "arrow-png".
func cssClassName(sheetName, spriteID string) string {
	name := sheetName
	if spriteID != "" {
		name += "-" + spriteID
	}
	name = strings.NewReplacer(" ", "-", ".", "-").Replace(name)
	return cssClassInvalidChars.ReplaceAllString(name, "")
}
