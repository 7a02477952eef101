package bargain

import (
	"fmt"
	"strconv"
)

// Copy deck per round. Tone: round 1 informatif, round 2 kasih warning,
// round 3 urgent + time-boxed. UI tinggal render, tidak perlu nyusun copy
// sendiri. Narrative bukan error channel.
type roundCopy struct {
	checking string
	success  string
	extra    string
	warning  string
	matched  string
}

var roundCopyByNumber = map[int]roundCopy{
	1: {
		checking: "Let me check with the %s provider about your offer of %s…",
		success:  "Good news! We can offer you %s for this booking.",
		extra:    "This is a special price. It may not be available again if you continue bargaining.",
		matched:  "Congratulations! Your price of %s is matched. You can book right now.",
	},
	2: {
		checking: "Rechecking with the %s provider at %s…",
		success:  "We can offer %s this time.",
		extra:    "Remember, the first price is usually the best. This one might not last long.",
		warning:  "Are you sure you want to try again? This offer may not be better than the previous one.",
		matched:  "Congratulations! Your price of %s is matched. You can book right now.",
	},
	3: {
		checking: "Final check with the %s provider at %s…",
		success:  "Great news! We can offer %s for this booking.",
		extra:    "You have %d seconds to book at this price, or the offer will expire.",
		warning:  "This is your last round. The price could be better, the same, or even higher.",
		matched:  "Congratulations! Your price of %s is matched. Book now.",
	},
}

func copyForRound(round, maxRounds int) roundCopy {
	switch {
	case round <= 1:
		return roundCopyByNumber[1]
	case round >= maxRounds:
		return roundCopyByNumber[3]
	default:
		return roundCopyByNumber[2]
	}
}

func matchedNarrative(round, maxRounds int, userCents int64) string {
	return fmt.Sprintf(copyForRound(round, maxRounds).matched, formatCents(userCents))
}

func counterNarrative(round, maxRounds int, module Module, userCents, counterCents int64, holdSeconds int) string {
	c := copyForRound(round, maxRounds)
	out := fmt.Sprintf(c.checking, module, formatCents(userCents)) +
		" " + fmt.Sprintf(c.success, formatCents(counterCents))
	if round >= maxRounds {
		return out + " " + fmt.Sprintf(c.extra, holdSeconds)
	}
	return out + " " + c.extra
}

func counterWarning(round, maxRounds int) string {
	return copyForRound(round, maxRounds).warning
}

// formatCents render cents jadi "11,500" atau "11,500.50".
func formatCents(cents int64) string {
	// tanda dicek dari nilai, bukan dari string: -50/100 = 0 dan "0" tidak
	// bawa minus
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if rem := cents % 100; rem != 0 {
		s = fmt.Sprintf("%s.%02d", s, rem)
	}
	if neg {
		s = "-" + s
	}
	return s
}
