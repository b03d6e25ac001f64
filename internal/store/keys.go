package store

// Key layout:
//
//	conventions:snapshot   the convention store blob
//	stats:project          running totals
//	result:<uuidv7>        one processing result; v7 ids sort by creation time
const (
	conventionsKey = "conventions:snapshot"
	statsKey       = "stats:project"
	resultPrefix   = "result:"
)

func resultKey(id string) []byte {
	return []byte(resultPrefix + id)
}

// prefixEnd returns a key that sorts after every key under prefix, where a
// reverse iterator starts.
func prefixEnd(prefix string) []byte {
	return append([]byte(prefix), 0xFF)
}
