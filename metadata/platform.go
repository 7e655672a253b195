package metadata

// Platform selects which cloud metadata service the collector talks to.
type Platform int

const (
	PlatformNone Platform = iota
	PlatformAWS
	PlatformAzure
)

func (p Platform) String() string {
	switch p {
	case PlatformAWS:
		return "aws"
	case PlatformAzure:
		return "azure"
	default:
		return "none"
	}
}
