package sync

import (
	"bufio"
	"os"
	"strings"
	"time"
)

// lastWatermark returns the timestamp of the most recent completed sync,
// read from the last parseable line of the watermark log. Zero means no
// sync has completed yet, so the next pass fetches everything.
func (sy *Syncer) lastWatermark() time.Time {
	if sy.WatermarkPath == "" {
		return time.Time{}
	}
	f, err := os.Open(sy.WatermarkPath)
	if err != nil {
		return time.Time{}
	}
	defer f.Close()

	var last time.Time
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, line); err == nil {
			last = ts
		} else {
			sy.logf("skipping malformed watermark line %q", line)
		}
	}
	return last
}

// appendWatermark appends one timestamp line to the log. The log is
// append-only so a torn write can at worst lose the newest line, never
// corrupt history.
func (sy *Syncer) appendWatermark(t time.Time) error {
	if sy.WatermarkPath == "" {
		return nil
	}
	f, err := os.OpenFile(sy.WatermarkPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(t.UTC().Format(time.RFC3339Nano) + "\n")
	return err
}
