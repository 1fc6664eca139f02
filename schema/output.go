package schema

import (
	"fmt"
	"strconv"
)

// DefaultMaxLines is the per-stream line ceiling.
const DefaultMaxLines = 10000

// ProgramOverflowNotice is appended once when the program stream overflows.
func ProgramOverflowNotice(maxLines int) string {
	return fmt.Sprintf("\n❌ OUTPUT LIMIT EXCEEDED (%s lines)\nProcess terminated for security reasons.\n", groupThousands(maxLines))
}

// SystemOverflowNotice is appended once when the system stream overflows.
func SystemOverflowNotice(maxLines int) string {
	return fmt.Sprintf("\n❌ SYSTEM LIMIT EXCEEDED (%s lines)\n", groupThousands(maxLines))
}

func groupThousands(n int) string {
	digits := strconv.Itoa(n)
	if n < 0 {
		return "-" + groupThousands(-n)
	}
	if len(digits) <= 3 {
		return digits
	}
	out := make([]byte, 0, len(digits)+len(digits)/3)
	lead := len(digits) % 3
	if lead > 0 {
		out = append(out, digits[:lead]...)
	}
	for i := lead; i < len(digits); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i:i+3]...)
	}
	return string(out)
}
