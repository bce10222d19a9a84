package process

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	gops "github.com/mitchellh/go-ps"
)

// DefaultStaleThreshold is the default count of stopped/matching processes
// that triggers a force-kill sweep before a run starts (§4.3).
const DefaultStaleThreshold = 10

// procInfo is the subset of /proc a stale-process sweep needs: go-ps only
// exposes pid/ppid/executable, not state or the full command line, so both
// are read directly from /proc on Linux. On non-Linux platforms
// readProcState/readProcCmdline return "" and CleanStaleProcesses is a
// no-op, matching the spec's "no-op on Windows" carve-out.
type procInfo struct {
	pid     int
	state   string
	cmdline string
}

// listProcesses enumerates all processes visible to this host. It never
// returns an error for an individual process it can't fully inspect —
// such processes are listed with an empty state and command line, so no
// sweep ever matches them.
func listProcesses() []procInfo {
	procs, err := gops.Processes()
	if err != nil {
		return nil
	}
	out := make([]procInfo, 0, len(procs))
	for _, p := range procs {
		pid := p.Pid()
		out = append(out, procInfo{
			pid:     pid,
			state:   readProcState(pid),
			cmdline: readProcCmdline(pid),
		})
	}
	return out
}

func readProcState(pid int) string {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return ""
	}
	// Format: "pid (comm) state ...". comm may itself contain spaces or
	// parens, so split on the last ')' rather than naive field indexing.
	s := string(data)
	idx := strings.LastIndex(s, ")")
	if idx < 0 || idx+2 >= len(s) {
		return ""
	}
	fields := strings.Fields(s[idx+1:])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func readProcCmdline(pid int) string {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/cmdline")
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(string(data), "\x00", " ")
}

// isStopped reports whether a /proc stat state field indicates the process
// is stopped (the "T" marker in the spec).
func isStopped(state string) bool {
	return state == "T" || state == "t"
}

// matchesSessionPattern reports whether cmdline looks like it belongs to a
// backend run identified by one of sessionIDs, by simple substring match —
// the patterns here are session ids themselves, not full regexes, since
// session ids are opaque tokens that never need escaping.
func matchesSessionPattern(cmdline string, sessionIDs []string) bool {
	for _, id := range sessionIDs {
		if id != "" && strings.Contains(cmdline, id) {
			return true
		}
	}
	return false
}

// resumeKillPattern builds the `command.*<resumeArgs with sessionId
// substituted>` matcher from §4.3 step 2.
func resumeKillPattern(command string, resumeArgs []string, sessionID string) (*regexp.Regexp, error) {
	substituted := make([]string, len(resumeArgs))
	for i, a := range resumeArgs {
		substituted[i] = strings.ReplaceAll(a, "{sessionId}", sessionID)
	}
	pattern := regexp.QuoteMeta(command) + ".*" + regexp.QuoteMeta(strings.Join(substituted, " "))
	return regexp.Compile(pattern)
}

// CleanupRequest describes one stale-process sweep ahead of a run.
type CleanupRequest struct {
	SessionIDPatterns []string
	Threshold         int // defaults to DefaultStaleThreshold when <= 0

	// Resume-specific fields: when CliSessionID is set and ResumeArgs
	// contains "{sessionId}", step 2 of §4.3 additionally kills any
	// process whose command line matches command+resumeArgs.
	CliSessionID string
	Command      string
	ResumeArgs   []string
}

// CleanupResult reports what CleanStaleProcesses did, for logging.
type CleanupResult struct {
	StoppedMatched int
	Killed         []int
}

// CleanStaleProcesses implements §4.3's pre-run sweep: stopped processes
// matching the backend's session-id patterns are force-killed once their
// count exceeds the threshold, and (for resumes) any process still running
// the prior invocation of this same session is killed outright.
func CleanStaleProcesses(req CleanupRequest) CleanupResult {
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}

	result := CleanupResult{}
	procs := listProcesses()

	var stopped []procInfo
	for _, p := range procs {
		if isStopped(p.state) && matchesSessionPattern(p.cmdline, req.SessionIDPatterns) {
			stopped = append(stopped, p)
		}
	}
	result.StoppedMatched = len(stopped)
	if len(stopped) > threshold {
		for _, p := range stopped {
			if killPid(p.pid) {
				result.Killed = append(result.Killed, p.pid)
			}
		}
	}

	if req.CliSessionID != "" && containsSessionIDToken(req.ResumeArgs) {
		re, err := resumeKillPattern(req.Command, req.ResumeArgs, req.CliSessionID)
		if err == nil {
			for _, p := range procs {
				if re.MatchString(p.cmdline) {
					if killPid(p.pid) {
						result.Killed = append(result.Killed, p.pid)
					}
				}
			}
		}
	}

	return result
}

func containsSessionIDToken(resumeArgs []string) bool {
	for _, a := range resumeArgs {
		if strings.Contains(a, "{sessionId}") {
			return true
		}
	}
	return false
}

func killPid(pid int) bool {
	return syscall.Kill(pid, syscall.SIGKILL) == nil
}
