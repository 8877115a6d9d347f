package policy

import (
	"regexp"
	"strings"
)

// Segment is one pipeline element of a lexed command line.
type Segment struct {
	// Executable is the first word of the segment.
	Executable string

	// Args are the remaining words.
	Args []string
}

// Words returns the segment as a flat word list.
func (s Segment) Words() []string {
	return append([]string{s.Executable}, s.Args...)
}

var segmentSplit = regexp.MustCompile(`\|\||&&|[;|]`)

// LexCommand splits a shell command line into pipeline segments, honoring
// single and double quotes. The lexer does not interpret the shell: it only
// needs enough structure to name executables and spot dangerous arguments.
func LexCommand(command string) []Segment {
	var segments []Segment
	for _, part := range segmentSplit.Split(command, -1) {
		words := lexWords(part)
		if len(words) == 0 {
			continue
		}
		// Strip leading environment assignments (FOO=bar cmd).
		start := 0
		for start < len(words) && strings.Contains(words[start], "=") && !strings.HasPrefix(words[start], "-") {
			if eq := strings.Index(words[start], "="); eq > 0 && isIdentifier(words[start][:eq]) {
				start++
				continue
			}
			break
		}
		if start >= len(words) {
			continue
		}
		segments = append(segments, Segment{
			Executable: words[start],
			Args:       words[start+1:],
		})
	}
	return segments
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return s != ""
}

func lexWords(s string) []string {
	var words []string
	var cur strings.Builder
	var quote rune
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// networkCommands name executables whose primary purpose is network access.
var networkCommands = map[string]bool{
	"curl": true, "wget": true, "nc": true, "ncat": true, "netcat": true,
	"ssh": true, "scp": true, "sftp": true, "rsync": true, "ftp": true,
	"telnet": true, "ping": true, "dig": true, "nslookup": true,
}

// networkSubcommands name (executable, subcommand) pairs that reach the
// network even though the executable itself is usually local.
var networkSubcommands = map[string]map[string]bool{
	"git":  {"clone": true, "fetch": true, "pull": true, "push": true, "remote": true},
	"go":   {"get": true, "install": true},
	"pip":  {"install": true, "download": true},
	"pip3": {"install": true, "download": true},
	"npm":  {"install": true, "update": true, "publish": true},
	"pnpm": {"install": true, "add": true},
	"yarn": {"add": true, "install": true},
	"apt":  {"install": true, "update": true, "upgrade": true},
	"apt-get": {"install": true, "update": true, "upgrade": true},
	"brew": {"install": true, "upgrade": true},
	"docker": {"pull": true, "push": true},
}

// UsesNetwork reports whether any segment of the command heuristically
// reaches the network.
func UsesNetwork(segments []Segment) (bool, string) {
	for _, seg := range segments {
		exe := baseName(seg.Executable)
		if networkCommands[exe] {
			return true, exe
		}
		if subs, ok := networkSubcommands[exe]; ok {
			for _, arg := range seg.Args {
				if strings.HasPrefix(arg, "-") {
					continue
				}
				if subs[arg] {
					return true, exe + " " + arg
				}
				break
			}
		}
	}
	return false, ""
}

// Escalation describes a detected privilege or destruction hazard.
type Escalation struct {
	Reason string
	Risk   RiskLevel
}

// DetectEscalation flags privilege escalation and destructive commands.
// Critical hazards should be denied outright; high ones routed through
// strict confirmation.
func DetectEscalation(segments []Segment) *Escalation {
	for _, seg := range segments {
		exe := baseName(seg.Executable)
		switch exe {
		case "sudo", "su", "doas":
			return &Escalation{Reason: "privilege escalation via " + exe, Risk: RiskCritical}
		case "mkfs", "fdisk", "parted":
			return &Escalation{Reason: "disk formatting via " + exe, Risk: RiskCritical}
		case "shutdown", "reboot", "halt", "poweroff":
			return &Escalation{Reason: "system power control via " + exe, Risk: RiskCritical}
		case "chmod":
			for _, arg := range seg.Args {
				if arg == "777" || strings.HasSuffix(arg, "+s") {
					return &Escalation{Reason: "world-writable or setuid chmod", Risk: RiskHigh}
				}
			}
		case "chown":
			for _, arg := range seg.Args {
				if arg == "root" || strings.HasPrefix(arg, "root:") {
					return &Escalation{Reason: "chown to root", Risk: RiskHigh}
				}
			}
		case "rm":
			if esc := classifyRm(seg.Args); esc != nil {
				return esc
			}
		case "dd":
			for _, arg := range seg.Args {
				if strings.HasPrefix(arg, "of=/dev/") {
					return &Escalation{Reason: "raw device write via dd", Risk: RiskCritical}
				}
			}
		}
	}
	return nil
}

func classifyRm(args []string) *Escalation {
	recursive, force := false, false
	var targets []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			if strings.Contains(arg, "r") || strings.Contains(arg, "R") {
				recursive = true
			}
			if strings.Contains(arg, "f") {
				force = true
			}
			continue
		}
		targets = append(targets, arg)
	}
	if !recursive || !force {
		return nil
	}
	for _, target := range targets {
		switch target {
		case "/", "/*", "~", "~/", "$HOME", ".", "..":
			return &Escalation{Reason: "destructive rm -rf on " + target, Risk: RiskCritical}
		}
		if strings.HasPrefix(target, "/") && strings.Count(target, "/") <= 2 {
			return &Escalation{Reason: "rm -rf near filesystem root: " + target, Risk: RiskCritical}
		}
	}
	return &Escalation{Reason: "recursive forced delete", Risk: RiskHigh}
}

func baseName(exe string) string {
	if idx := strings.LastIndexByte(exe, '/'); idx >= 0 {
		return exe[idx+1:]
	}
	return exe
}
