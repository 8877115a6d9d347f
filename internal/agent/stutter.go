package agent

// stutterThreshold is the longest run of a single repeated character the
// assistant may emit before the text is treated as a runaway generation.
const stutterThreshold = 120

// detectStutter scans for a run of one repeated character longer than the
// threshold. On detection it returns the text truncated at the start of the
// run and true. Whitespace runs are exempt; indentation and blank regions
// are legitimate.
func detectStutter(text string) (string, bool) {
	var prev rune
	runStart := 0
	runLen := 0
	for i, r := range text {
		if r == prev {
			runLen++
			if runLen > stutterThreshold && r != ' ' && r != '\n' && r != '\t' {
				return text[:runStart], true
			}
			continue
		}
		prev = r
		runStart = i
		runLen = 1
	}
	return text, false
}
