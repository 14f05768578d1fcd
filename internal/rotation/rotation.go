// Package rotation computes contribution due dates and the payout order of a
// tontine. Every function is pure: inputs are never mutated and callers
// persist the returned values.
package rotation

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/segyhp/tontine-engine/internal/domain"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
)

// NextDueDate returns the due date of the given cycle. Monthly schedules use
// calendar months clamped to the end of the target month, and honour
// paymentDay (1..31) as a fixed day of month when set.
func NextDueDate(start time.Time, frequency domain.Frequency, customDays, cycle, paymentDay int) (time.Time, error) {
	switch frequency {
	case domain.FrequencyDaily:
		return start.AddDate(0, 0, cycle), nil
	case domain.FrequencyWeekly:
		return start.AddDate(0, 0, 7*cycle), nil
	case domain.FrequencyMonthly:
		due := AddMonths(start, cycle)
		if paymentDay > 0 {
			due = withDayOfMonth(due, paymentDay)
		}
		return due, nil
	case domain.FrequencyCustom:
		if customDays <= 0 {
			return time.Time{}, customError.WrapInvalidFrequency(string(frequency))
		}
		return start.AddDate(0, 0, customDays*cycle), nil
	default:
		return time.Time{}, customError.WrapInvalidFrequency(string(frequency))
	}
}

// ValidateSchedule checks that a frequency configuration can produce due dates.
func ValidateSchedule(frequency domain.Frequency, customDays, paymentDay int) error {
	if paymentDay < 0 || paymentDay > 31 {
		return customError.WrapValidation(fmt.Sprintf("payment day %d is outside 1..31", paymentDay))
	}
	_, err := NextDueDate(time.Time{}, frequency, customDays, 0, paymentDay)
	return err
}

// AddMonths adds n calendar months to t. When the day of t does not exist in
// the target month, the last day of that month is used instead of spilling
// into the following one.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func withDayOfMonth(t time.Time, day int) time.Time {
	if last := daysIn(t); day > last {
		day = last
	}
	y, m, _ := t.Date()
	return time.Date(y, m, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(t time.Time) int {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// AssignPositions returns a copy of participants numbered 1..N. Manual order
// keeps the current position order (join order unless reordered); random
// order applies one Fisher–Yates shuffle drawn from rng.
func AssignPositions(participants []*domain.Participant, orderType domain.OrderType, rng *rand.Rand) ([]*domain.Participant, error) {
	ordered := byPosition(participants)

	switch orderType {
	case domain.OrderTypeManual:
	case domain.OrderTypeRandom:
		if rng == nil {
			return nil, fmt.Errorf("random order requires a random source")
		}
		for i := len(ordered) - 1; i > 0; i-- {
			j := rng.IntN(i + 1)
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	default:
		return nil, customError.WrapValidation(fmt.Sprintf("unknown order type %q", orderType))
	}

	return number(ordered), nil
}

// Renumber returns a copy of participants with contiguous positions 1..N,
// keeping their relative order.
func Renumber(participants []*domain.Participant) []*domain.Participant {
	return number(byPosition(participants))
}

// Reorder returns a copy of participants arranged as ids. ids must name every
// participant exactly once.
func Reorder(participants []*domain.Participant, ids []string) ([]*domain.Participant, error) {
	if len(ids) != len(participants) {
		return nil, customError.WrapValidation(fmt.Sprintf("expected %d participant ids, got %d", len(participants), len(ids)))
	}

	index := make(map[string]*domain.Participant, len(participants))
	for _, p := range participants {
		index[p.ID] = p
	}

	ordered := make([]*domain.Participant, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		p, ok := index[id]
		if !ok {
			return nil, customError.WrapValidation(fmt.Sprintf("participant %s is not part of this tontine", id))
		}
		if seen[id] {
			return nil, customError.WrapValidation(fmt.Sprintf("participant %s listed twice", id))
		}
		seen[id] = true
		ordered = append(ordered, p)
	}

	return number(ordered), nil
}

// IsPermutation reports whether the positions of participants are exactly 1..N.
func IsPermutation(participants []*domain.Participant) bool {
	seen := make([]bool, len(participants)+1)
	for _, p := range participants {
		if p.Position < 1 || p.Position > len(participants) || seen[p.Position] {
			return false
		}
		seen[p.Position] = true
	}
	return true
}

// NewRand returns a ChaCha8 generator seeded from crypto/rand.
func NewRand() (*rand.Rand, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return rand.New(rand.NewChaCha8(seed)), nil
}

// NewSeededRand returns a deterministic generator, for replays and tests.
func NewSeededRand(seed uint64) *rand.Rand {
	var b [32]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	return rand.New(rand.NewChaCha8(b))
}

// byPosition copies participants sorted by their current position. Ties keep
// slice order.
func byPosition(participants []*domain.Participant) []*domain.Participant {
	out := make([]*domain.Participant, 0, len(participants))
	for _, p := range participants {
		cp := *p
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func number(ordered []*domain.Participant) []*domain.Participant {
	out := make([]*domain.Participant, len(ordered))
	for i, p := range ordered {
		cp := *p
		cp.Position = i + 1
		out[i] = &cp
	}
	return out
}
