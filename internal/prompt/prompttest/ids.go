package prompttest

import "strings"

// componentOf extracts the component segment without depending on the
// prompt package, which imports this one in tests.
func componentOf(customID string) string {
	head, _, _ := strings.Cut(customID, "\U0001D15D")
	parts := strings.Split(head, ":")
	if len(parts) != 6 {
		return ""
	}
	return parts[5]
}
