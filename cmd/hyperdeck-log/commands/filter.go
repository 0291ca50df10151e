package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/deckcontrol/hyperdeck-go/pkg/log"
)

// FilterOptions specifies filtering criteria for the filter command.
// Code, Kind and Text select on the classified wire message and only
// match wire-layer events.
type FilterOptions struct {
	Output    string
	ConnID    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string

	// Code keeps messages with this status code ("205") or within an
	// inclusive range ("500-599").
	Code string

	// Kind keeps messages of one classification:
	// command, success, failure or notification.
	Kind string

	// Text keeps messages whose status text contains this substring
	// (case-insensitive), e.g. "transport info".
	Text string
}

// codeRange is a parsed -code flag.
type codeRange struct {
	lo, hi int
}

func parseCodeFlag(s string) (codeRange, error) {
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		l, err1 := strconv.Atoi(lo)
		h, err2 := strconv.Atoi(hi)
		if err1 != nil || err2 != nil || l > h {
			return codeRange{}, fmt.Errorf("invalid code range %q (want NNN or NNN-NNN)", s)
		}
		return codeRange{l, h}, nil
	}
	c, err := strconv.Atoi(s)
	if err != nil {
		return codeRange{}, fmt.Errorf("invalid code %q (want NNN or NNN-NNN)", s)
	}
	return codeRange{c, c}, nil
}

func parseKindFlag(s string) (string, error) {
	switch strings.ToLower(s) {
	case "command":
		return "COMMAND", nil
	case "success":
		return "SUCCESS", nil
	case "failure":
		return "FAILURE", nil
	case "notification":
		return "NOTIFICATION", nil
	default:
		return "", fmt.Errorf("unknown kind: %s (valid: command, success, failure, notification)", s)
	}
}

// RunFilter filters the capture file and writes matching events to a new
// file.
func RunFilter(path string, opts FilterOptions) error {
	filter := log.Filter{
		ConnectionID: opts.ConnID,
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if opts.Layer != "" {
		l, err := parseLayer(opts.Layer)
		if err != nil {
			return err
		}
		filter.Layer = &l
	}

	if opts.Direction != "" {
		d, err := parseDirection(opts.Direction)
		if err != nil {
			return err
		}
		filter.Direction = &d
	}

	if opts.Category != "" {
		c, err := parseCategory(opts.Category)
		if err != nil {
			return err
		}
		filter.Category = &c
	}

	var codes *codeRange
	if opts.Code != "" {
		cr, err := parseCodeFlag(opts.Code)
		if err != nil {
			return err
		}
		codes = &cr
	}

	kind := ""
	if opts.Kind != "" {
		k, err := parseKindFlag(opts.Kind)
		if err != nil {
			return err
		}
		kind = k
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		if !matchesMessage(event, codes, kind, opts.Text) {
			continue
		}

		logger.Log(event)
		count++
	}

	fmt.Printf("Filtered %d events to %s\n", count, opts.Output)
	return nil
}

// matchesMessage applies the wire-message criteria. Events without a
// classified message only pass when no message criterion is set.
func matchesMessage(event log.Event, codes *codeRange, kind, text string) bool {
	if codes == nil && kind == "" && text == "" {
		return true
	}
	if event.Message == nil {
		return false
	}
	if codes != nil && (event.Message.Code < codes.lo || event.Message.Code > codes.hi) {
		return false
	}
	if kind != "" && event.Message.Kind != kind {
		return false
	}
	if text != "" && !strings.Contains(strings.ToLower(event.Message.Text), strings.ToLower(text)) {
		return false
	}
	return true
}
