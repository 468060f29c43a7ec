package validate

import (
	"regexp"
	"strings"
)

var (
	rendererImport = regexp.MustCompile(`(?m)^\s*(from\s+manim(\.\w+)*\s+import\b|import\s+manim\b)`)
	classDecl      = regexp.MustCompile(`(?m)^class\s+(\w+)\s*\(([^)]*)\)\s*:`)
)

// CheckStructure verifies the renderer import and a top-level scene class, and
// returns the name of the first scene class.
func CheckStructure(code string) (string, *Failure) {
	if !rendererImport.MatchString(code) {
		return "", &Failure{
			Kind:    KindStructural,
			Message: `the code does not import the renderer; start with "from manim import *"`,
		}
	}
	for _, m := range classDecl.FindAllStringSubmatch(code, -1) {
		for _, base := range strings.Split(m[2], ",") {
			if strings.HasSuffix(strings.TrimSpace(base), "Scene") {
				return m[1], nil
			}
		}
	}
	return "", &Failure{
		Kind:    KindStructural,
		Message: "the code does not declare a top-level class deriving from Scene",
	}
}
