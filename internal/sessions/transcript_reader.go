package sessions

import (
	"bufio"
	"encoding/json"
	"os"
)

// transcriptLine is the minimal envelope every transcript record shares,
// used to pick out the fields a reader needs without committing to one
// record's full shape.
type transcriptLine struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ReadLatestAssistantReply scans a session transcript and returns the Text
// field of the last assistant record, or "" if the file doesn't exist or
// holds no assistant record yet. Used by the announce flow (§4.7 step 2) to
// read a completed child's final reply.
func ReadLatestAssistantReply(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	var latest string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var line transcriptLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Role == "assistant" {
			latest = line.Text
		}
	}
	if err := scanner.Err(); err != nil {
		return latest, err
	}
	return latest, nil
}

// ReadRawRecords returns every decoded record line in a transcript, in
// file order, for use by the sessions_history tool. The header line (which
// has no "role" field) is included so callers can recover cwd/created time.
func ReadRawRecords(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		records = append(records, json.RawMessage(line))
	}
	return records, scanner.Err()
}
