package pipeline

import (
	"fmt"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/validate"
)

func suppliedScriptRequest(concept string) string {
	return "Write a scene script for: " + concept
}

func simplerAfterCodeFailure(concept string, attempts int, failure *validate.Failure) string {
	detail := "unknown error"
	if failure != nil {
		detail = failure.Error()
	}
	return fmt.Sprintf(
		"The previous scene script led to code that couldn't be fixed after %d attempts. The error was: %s\n\nPlease create a simpler scene script for: %s",
		attempts, detail, concept,
	)
}

func simplerAfterNoFrames(concept string) string {
	return "The previous scene script didn't produce any images. Please create a simpler scene script for: " + concept
}

func foldCritique(feedback, script string) string {
	return fmt.Sprintf("Update this scene script based on the following critique: %s\nOriginal script: %s", feedback, script)
}
