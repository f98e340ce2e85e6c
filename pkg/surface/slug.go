package surface

import "strings"

// Slug derives the stable protocol name fragment for a service id.
// "dwp.apply-benefit" becomes "dwp_apply_benefit". The transform is part
// of the published contract: tool and prompt names derived from it must
// not change once a service is live.
func Slug(serviceID string) string {
	var b strings.Builder
	b.Grow(len(serviceID))
	lastUnderscore := true
	for _, r := range strings.ToLower(serviceID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}
