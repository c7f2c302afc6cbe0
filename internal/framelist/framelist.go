// Package framelist parses frame range strings such as "1-10x2,15,20-22".
package framelist

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrConfiguration is returned for strings that are not valid frame lists.
var ErrConfiguration = errors.New("invalid frame list")

// Parse returns the frames described by s in ascending order without
// duplicates. Items are separated by commas and take the forms "N", "A-B"
// and "A-BxS". Negative numbers are allowed, so "-3--1" is -3, -2, -1.
func Parse(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty frame list", ErrConfiguration)
	}
	seen := make(map[int64]struct{})
	var frames []int64
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		items, err := parseItem(item)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrConfiguration, s, err)
		}
		for _, f := range items {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			frames = append(frames, f)
		}
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	return frames, nil
}

// Format renders frames compactly, joining runs with a common step.
func Format(frames []int64) string {
	var parts []string
	for i := 0; i < len(frames); {
		j := i
		if i+1 < len(frames) {
			step := frames[i+1] - frames[i]
			for j+1 < len(frames) && frames[j+1]-frames[j] == step {
				j++
			}
			switch {
			case j-i >= 2 && step == 1:
				parts = append(parts, fmt.Sprintf("%d-%d", frames[i], frames[j]))
				i = j + 1
				continue
			case j-i >= 2:
				parts = append(parts, fmt.Sprintf("%d-%dx%d", frames[i], frames[j], step))
				i = j + 1
				continue
			}
		}
		parts = append(parts, strconv.FormatInt(frames[i], 10))
		i++
	}
	return strings.Join(parts, ",")
}

func parseItem(item string) ([]int64, error) {
	if item == "" {
		return nil, errors.New("empty item")
	}
	rng, stepText, hasStep := strings.Cut(item, "x")
	step := int64(1)
	if hasStep {
		var err error
		step, err = strconv.ParseInt(stepText, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad step %q", stepText)
		}
		if step <= 0 {
			return nil, fmt.Errorf("step must be positive, got %d", step)
		}
	}

	start, end, err := splitRange(rng)
	if err != nil {
		return nil, err
	}
	if end < start {
		return nil, fmt.Errorf("range %q ends before it starts", rng)
	}
	if hasStep && start == end && !strings.Contains(rng[1:], "-") {
		return nil, fmt.Errorf("step without a range in %q", item)
	}
	var out []int64
	for f := start; f <= end; f += step {
		out = append(out, f)
	}
	return out, nil
}

// splitRange parses "N" or "A-B", where either bound may be negative.
func splitRange(s string) (int64, int64, error) {
	// The separator is the first '-' that is not a leading sign.
	sep := -1
	for i := 1; i < len(s); i++ {
		if s[i] == '-' {
			sep = i
			break
		}
	}
	if sep < 0 {
		f, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("bad frame %q", s)
		}
		return f, f, nil
	}
	start, err := strconv.ParseInt(s[:sep], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad range start %q", s[:sep])
	}
	end, err := strconv.ParseInt(s[sep+1:], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad range end %q", s[sep+1:])
	}
	return start, end, nil
}
