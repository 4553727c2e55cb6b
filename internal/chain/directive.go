package chain

import (
	"fmt"
	"strings"
)

// buildDirective renders the text directive for one session: the lifecycle
// instructions plus either the prior handover document (continuation) or the
// numbered pending-task list (fresh start).
func buildDirective(s *Session, handoverDoc, planFile, workDir string) string {
	var b strings.Builder

	if handoverDoc != "" {
		fmt.Fprintf(&b, "You are Session #%d. You are taking over from the previous session.\n\n", s.Number)
		fmt.Fprintf(&b, "## Handover Document\n%s\n", handoverDoc)
	} else {
		fmt.Fprintf(&b, "You are Session #%d.\n\n", s.Number)
		fmt.Fprintf(&b, "## Pending Tasks (from %s)\n", planFile)
		for i, task := range s.Tasks {
			fmt.Fprintf(&b, "%d. [ ] %s\n", i+1, task)
		}
	}

	fmt.Fprintf(&b, `
## Important Instructions

1. **Update %[1]s whenever you complete a task**
   - Change "- [ ] task" to "- [x] task"
   - Progress is tracked through that file, nothing else

2. Work through the tasks in order

3. If a task cannot be done in this environment (external service, manual
   work required):
   - Add a comment to %[1]s explaining why
   - Mark the parts you could finish
   - Move on to the next task

4. Working directory: %[2]s

5. Keep working until every task is done or no further progress is possible

6. **Stop immediately on a fatal error**:
   - A file is locked (in use by another process)
   - Permission denied / Access is denied
   - A build fails because an executable is locked
   Report the error and stop. Do not hand over: the user has to release the
   lock before anything can be retried.
`, planFile, workDir)

	if handoverDoc != "" {
		b.WriteString("\nReview the handover document and start from the remaining tasks.\n")
	} else {
		b.WriteString("\nStart with the first task.\n")
	}

	return b.String()
}
