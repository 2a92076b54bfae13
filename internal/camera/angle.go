package camera

import "strings"

// UnknownAngle is reported when no match rule resolves the friendly name to
// an angle code. The system never persists any other out-of-band value.
const UnknownAngle = "UNK"

var validAngles = map[string]bool{
	"FL": true,
	"FR": true,
	"NL": true,
	"NR": true,
}

// matchAngle maps friendlyName to an angle code using three rules tried in
// order: exact match, case-insensitive match, then substring match. The
// first rule to produce a hit wins.
func matchAngle(angleMap map[string]string, friendlyName string) string {
	if angle, ok := angleMap[friendlyName]; ok && validAngles[angle] {
		return angle
	}

	lowerName := strings.ToLower(friendlyName)
	for key, angle := range angleMap {
		if strings.ToLower(key) == lowerName && validAngles[angle] {
			return angle
		}
	}

	for key, angle := range angleMap {
		if key != "" && strings.Contains(lowerName, strings.ToLower(key)) && validAngles[angle] {
			return angle
		}
	}

	return UnknownAngle
}
