package token

// String renders a Kind using its upper-case name from kindNames (e.g.
// "LEFT_PAREN"), or "UNKNOWN" for a value outside that table.
func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "UNKNOWN"
}
