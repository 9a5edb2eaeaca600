package cli

import (
	"fmt"
	"io"

	storyerrors "github.com/randalmurphal/storyforge/internal/errors"
)

// PrintError prints err to w. StoryErrors use their user-facing message;
// verbose adds the code and cause.
func PrintError(w io.Writer, err error, verbose bool) {
	if se := storyerrors.AsStoryError(err); se != nil {
		fmt.Fprintln(w, se.UserMessage())
		if verbose {
			fmt.Fprintf(w, "\nCode: %s\n", se.Code)
			if se.Cause != nil {
				fmt.Fprintf(w, "Cause: %v\n", se.Cause)
			}
		}
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
