package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/segyhp/fee-engine/pkg/utils"
)

// ReceiptNumber formats a payment receipt number: RCP-YYYYMMDD-NNNN.
// day must already be in the business timezone.
func ReceiptNumber(day time.Time, sequence int64) string {
	return fmt.Sprintf("RCP-%s-%04d", day.Format(utils.DayLayout), sequence)
}

// ReversalNumber formats a reversal receipt number: REV-YYYYMMDD-R{n}, where n is
// the 1-based count of reversals of the original receipt.
func ReversalNumber(day time.Time, n int) string {
	return fmt.Sprintf("REV-%s-R%d", day.Format(utils.DayLayout), n)
}

// SequenceDay is the key of the daily receipt counter.
func SequenceDay(day time.Time) string {
	return utils.DayKey(day, day.Location())
}

// StructureCode formats FS-{YEAR}-{COURSE}-{DEPT}-S{SEM}[-V{version}].
func StructureCode(academicYear, course, department string, semester, version int) string {
	year := academicYear
	if i := strings.IndexAny(year, "-/"); i > 0 {
		year = year[:i]
	}
	code := fmt.Sprintf("FS-%s-%s-%s-S%d", codeSegment(year), codeSegment(course), codeSegment(department), semester)
	if version > 1 {
		code = fmt.Sprintf("%s-V%d", code, version)
	}
	return code
}

func codeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
